package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/matrixgraph/pkg/config"
	"github.com/orneryd/matrixgraph/pkg/execution"
	"github.com/orneryd/matrixgraph/pkg/index"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

func TestInit_ExportsEngineSpans(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	shutdown, err := Init(ctx, config.TracingConfig{Exporter: "stdout"}, Options{ServiceVersion: "test", Writer: &buf, Sync: true})
	require.NoError(t, err)

	g := storage.NewGraph("traced")
	require.NoError(t, g.Update(func() error {
		person := g.GetOrCreateLabel("Person")
		_, err := g.CreateNode([]storage.LabelID{person}, nil)
		return err
	}))

	p := execution.NewPlan(g)
	p.SetRoot(execution.NewNodeByLabelScan(p, "n", "Person"))
	p.Return("n")
	rs, err := p.Run(ctx)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)

	reg := index.NewRegistry(g)
	idx, err := reg.Create(storage.EntityNode, "Person", "name")
	require.NoError(t, err)
	_, err = index.Populate(ctx, idx, g, index.Options{})
	require.NoError(t, err)

	require.NoError(t, shutdown(ctx))

	out := buf.String()
	assert.Contains(t, out, `"Name": "execution.Run"`)
	assert.Contains(t, out, `"Name": "index.Populate"`)
	assert.Contains(t, out, "matrixgraph")
}

func TestInit_Exporters(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{Exporter: "none"}, Options{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), config.TracingConfig{Exporter: "zipkin"}, Options{})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

package execution

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// LoadCSV reads a CSV file and emits one record per row, bound to alias.
// Rows are arrays of strings, or maps keyed by the header row when
// withHeaders is set. Missing trailing fields map to null.
//
// The path may be a local file, a file:// URL or an http(s) URL. Beneath a
// child the path is evaluated and the file re-opened for every input record.
type LoadCSV struct {
	OpBase
	path        Expression
	alias       string
	slot        int
	withHeaders bool
	delimiter   rune

	childRecord *Record
	rc          io.ReadCloser
	reader      *csv.Reader
	header      []string
	exhausted   bool
}

// NewLoadCSV reads the file path evaluates to.
func NewLoadCSV(p *ExecutionPlan, path Expression, alias string, withHeaders bool) *LoadCSV {
	op := &LoadCSV{
		OpBase:      newOpBase(p, "Load CSV", false),
		path:        path,
		alias:       alias,
		withHeaders: withHeaders,
		delimiter:   ',',
	}
	op.slot = op.modify(alias)
	return op
}

// SetDelimiter changes the field delimiter.
func (op *LoadCSV) SetDelimiter(d rune) { op.delimiter = d }

func (op *LoadCSV) Init() error {
	op.close()
	op.childRecord = nil
	op.exhausted = false
	if op.hasChild() {
		op.consume = op.consumeFromChild
		return nil
	}
	// open now so a bad path fails before any record is pulled
	if err := op.open(op.plan.NewRecord()); err != nil {
		return err
	}
	op.consume = op.consumeStandalone
	return nil
}

func (op *LoadCSV) fetch(path string) (io.ReadCloser, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		req, err := http.NewRequestWithContext(op.plan.ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := op.plan.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
	return os.Open(strings.TrimPrefix(path, "file://"))
}

func (op *LoadCSV) open(rec *Record) error {
	op.close()

	v, err := op.path.Evaluate(op.evalCtx(), rec)
	if err != nil {
		return err
	}
	path, ok := v.AsString()
	if !ok {
		return queryError(op.name, "path to CSV must be a string, got %s", v.Type())
	}

	rc, err := op.fetch(path)
	if err != nil {
		return &QueryError{Op: op.name, Msg: fmt.Sprintf("failed to open CSV file %q", path), Err: err}
	}
	op.rc = rc
	op.reader = csv.NewReader(rc)
	op.reader.Comma = op.delimiter
	op.reader.LazyQuotes = true
	op.reader.FieldsPerRecord = -1
	op.plan.logger.Debug("loading csv", "plan", op.plan.ID, "path", path, "headers", op.withHeaders)

	if op.withHeaders {
		header, err := op.reader.Read()
		if err != nil && !errors.Is(err, io.EOF) {
			return &QueryError{Op: op.name, Msg: "failed to read CSV header", Err: err}
		}
		op.header = header
	}
	return nil
}

func (op *LoadCSV) close() {
	if op.rc != nil {
		op.rc.Close()
	}
	op.rc, op.reader, op.header = nil, nil, nil
}

// row reads the next row. ok is false at end of file.
func (op *LoadCSV) row() (storage.Value, bool, error) {
	fields, err := op.reader.Read()
	if errors.Is(err, io.EOF) {
		return storage.Value{}, false, nil
	}
	if err != nil {
		return storage.Value{}, false, &QueryError{Op: op.name, Msg: "failed to read CSV row", Err: err}
	}

	if !op.withHeaders {
		vals := make([]storage.Value, len(fields))
		for i, f := range fields {
			vals[i] = storage.StringValue(f)
		}
		return storage.ArrayValue(vals...), true, nil
	}

	m := make(map[string]storage.Value, len(op.header))
	for i, h := range op.header {
		if i < len(fields) {
			m[h] = storage.StringValue(fields[i])
		} else {
			m[h] = storage.NullValue()
		}
	}
	return storage.MapValue(m), true, nil
}

func (op *LoadCSV) consumeStandalone() (*Record, error) {
	if op.exhausted {
		return nil, nil
	}
	if op.reader == nil {
		if err := op.open(op.plan.NewRecord()); err != nil {
			return nil, err
		}
	}
	v, ok, err := op.row()
	if err != nil {
		return nil, err
	}
	if !ok {
		op.exhausted = true
		op.close()
		return nil, nil
	}
	out := op.plan.NewRecord()
	out.SetScalar(op.slot, v)
	return out, nil
}

func (op *LoadCSV) consumeFromChild() (*Record, error) {
	for {
		if op.childRecord == nil {
			r, err := op.child().Consume()
			if err != nil || r == nil {
				return nil, err
			}
			if err := op.open(r); err != nil {
				return nil, err
			}
			op.childRecord = r
		}

		v, ok, err := op.row()
		if err != nil {
			return nil, err
		}
		if !ok {
			op.close()
			op.childRecord = nil
			continue
		}
		out := op.childRecord.Clone()
		out.SetScalar(op.slot, v)
		return out, nil
	}
}

func (op *LoadCSV) Reset() error {
	op.close()
	op.childRecord = nil
	op.exhausted = false
	return nil
}

func (op *LoadCSV) Free() {
	op.close()
	op.childRecord = nil
}

func (op *LoadCSV) Clone(p *ExecutionPlan) Operation {
	c := NewLoadCSV(p, op.path.Clone(), op.alias, op.withHeaders)
	c.delimiter = op.delimiter
	return c
}

func (op *LoadCSV) String() string { return op.path.String() + " AS " + op.alias }

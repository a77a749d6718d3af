package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// GraphStats summarizes a graph for the stats command.
type GraphStats struct {
	Name         string                    `json:"name"`
	Nodes        uint64                    `json:"nodes"`
	Edges        uint64                    `json:"edges"`
	DeletedNodes int                       `json:"deleted_nodes"`
	DeletedEdges int                       `json:"deleted_edges"`
	NodeCapacity uint64                    `json:"node_capacity"`
	Labels       map[string]uint64         `json:"labels"`
	Relations    map[string]RelationStats  `json:"relations"`
	Indexes      []storage.IndexDefinition `json:"indexes"`
}

// RelationStats describes one relation matrix.
type RelationStats struct {
	Cells     uint64 `json:"cells"`
	MultiEdge bool   `json:"multi_edge"`
}

func newStatsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show graph statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			g, err := a.loadGraph(cmd.Context(), s, false)
			if err != nil {
				return err
			}
			st, err := collectStats(g)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStats(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print as JSON")
	return cmd
}

func collectStats(g *storage.Graph) (*GraphStats, error) {
	st := &GraphStats{
		Labels:    make(map[string]uint64),
		Relations: make(map[string]RelationStats),
	}
	err := g.View(func() error {
		st.Name = g.Name()
		st.Nodes, st.Edges = g.NodeCount(), g.EdgeCount()
		st.DeletedNodes, st.DeletedEdges = len(g.DeletedNodes()), len(g.DeletedEdges())
		st.NodeCapacity = g.NodeCapacity()
		st.Indexes = g.Schema().GetIndexes()

		for i, name := range g.Schema().Labels() {
			m, err := g.LabelMatrix(storage.LabelID(i))
			if err != nil {
				return err
			}
			st.Labels[name] = m.NVals()
		}
		for i, name := range g.Schema().Relations() {
			id := storage.RelationID(i)
			m, err := g.RelationMatrix(id, false)
			if err != nil {
				return err
			}
			st.Relations[name] = RelationStats{Cells: m.NVals(), MultiEdge: g.RelationHasMultiEdge(id)}
		}
		return nil
	})
	return st, err
}

func printStats(w io.Writer, st *GraphStats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Graph:\t%s\n", st.Name)
	fmt.Fprintf(tw, "Nodes:\t%d (%d deleted, capacity %d)\n", st.Nodes, st.DeletedNodes, st.NodeCapacity)
	fmt.Fprintf(tw, "Edges:\t%d (%d deleted)\n", st.Edges, st.DeletedEdges)
	for name, n := range st.Labels {
		fmt.Fprintf(tw, "  :%s\t%d nodes\n", name, n)
	}
	for name, r := range st.Relations {
		fmt.Fprintf(tw, "  [:%s]\t%d cells, multi-edge %v\n", name, r.Cells, r.MultiEdge)
	}
	for _, def := range st.Indexes {
		state := "active"
		if def.Pending {
			state = "pending"
		}
		fmt.Fprintf(tw, "  index %s\t%s %s %v (%s)\n", def.ID, def.Entity, def.Schema, def.Attributes, state)
	}
	tw.Flush()
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/matrixgraph/pkg/index"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

func newIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage property and vector indexes",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create and populate a property or vector index",
		Example: `  matrixgraph index create --label Person --attr name
  matrixgraph index create --relation KNOWS --attr since
  matrixgraph index create --label Doc --attr embedding --dim 384 --similarity cosine`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIndex(cmd, false)
		},
	}
	drop := &cobra.Command{
		Use:   "drop",
		Short: "Drop the property index of a label or relation type, or one vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIndex(cmd, true)
		},
	}
	nearest := &cobra.Command{
		Use:   "nearest",
		Short: "Print the k entities whose vectors are closest to a query vector",
		Example: `  matrixgraph index nearest --label Doc --attr embedding --vector "0.1,0.9,0" -k 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runNearest(cmd)
		},
	}
	for _, c := range []*cobra.Command{create, drop, nearest} {
		c.Flags().String("label", "", "Node label")
		c.Flags().String("relation", "", "Relation type")
		c.MarkFlagsMutuallyExclusive("label", "relation")
		c.MarkFlagsOneRequired("label", "relation")
	}
	create.Flags().StringSlice("attr", nil, "Indexed attribute (repeatable)")
	create.Flags().Int("dim", 0, "Create a vector index of this dimension on the single --attr")
	create.Flags().String("similarity", storage.SimilarityCosine, "Vector similarity function: cosine or dot")
	_ = create.MarkFlagRequired("attr")
	drop.Flags().String("vector", "", "Drop the vector index on this attribute instead")
	nearest.Flags().String("attr", "", "Vector-indexed attribute")
	nearest.Flags().String("vector", "", "Query vector, e.g. \"0.1,0.2,0.3\"")
	nearest.Flags().IntP("limit", "k", 10, "Number of neighbors")
	_ = nearest.MarkFlagRequired("attr")
	_ = nearest.MarkFlagRequired("vector")

	cmd.AddCommand(create, drop, nearest)
	return cmd
}

func indexTarget(cmd *cobra.Command) (storage.EntityType, string) {
	if rel, _ := cmd.Flags().GetString("relation"); rel != "" {
		return storage.EntityEdge, rel
	}
	label, _ := cmd.Flags().GetString("label")
	return storage.EntityNode, label
}

func (a *app) runIndex(cmd *cobra.Command, drop bool) error {
	ctx := cmd.Context()
	entity, schema := indexTarget(cmd)

	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	g, err := a.loadGraph(ctx, s, !drop)
	if err != nil {
		return err
	}
	reg := index.NewRegistry(g)
	pending := reg.Restore()

	if drop {
		if attr, _ := cmd.Flags().GetString("vector"); attr != "" {
			err = reg.DropVector(entity, schema, attr)
		} else {
			err = reg.Drop(entity, schema)
		}
		if err != nil {
			return err
		}
		if err := s.Save(ctx, g); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dropped %s index on %s\n", entity, schema)
		return nil
	}

	attrs, _ := cmd.Flags().GetStringSlice("attr")
	var idx *index.Index
	if dim, _ := cmd.Flags().GetInt("dim"); dim > 0 {
		if len(attrs) != 1 {
			return fmt.Errorf("a vector index covers exactly one attribute, got %d", len(attrs))
		}
		sim, _ := cmd.Flags().GetString("similarity")
		idx, err = reg.CreateVector(entity, schema, attrs[0], dim, strings.ToLower(sim))
	} else {
		idx, err = reg.Create(entity, schema, attrs...)
	}
	if err != nil {
		return err
	}
	pending = append(pending, idx)

	results, err := index.PopulateAll(ctx, g, reg, pending, a.cfg.Index.Workers,
		index.Options{BatchSize: a.cfg.Index.BatchSize, Logger: a.logger})
	if err != nil {
		return err
	}
	if err := s.Save(ctx, g); err != nil {
		return err
	}

	res := results[len(results)-1]
	fmt.Fprintf(cmd.OutOrStdout(), "Index %s on %s %v: %d entities in %d batches\n",
		idx.ID(), schema, idx.Definition().Attributes, res.Indexed, res.Batches)
	return nil
}

// runNearest loads the graph, populates its indexes and answers one
// k-nearest-neighbor query, printing a JSON line per neighbor.
func (a *app) runNearest(cmd *cobra.Command) error {
	ctx := cmd.Context()
	entity, schema := indexTarget(cmd)
	attr, _ := cmd.Flags().GetString("attr")
	raw, _ := cmd.Flags().GetString("vector")
	k, _ := cmd.Flags().GetInt("limit")

	q, err := storage.ParseVector(raw)
	if err != nil {
		return err
	}

	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	g, err := a.loadGraph(ctx, s, false)
	if err != nil {
		return err
	}
	reg := index.NewRegistry(g)
	if _, err := index.PopulateAll(ctx, g, reg, reg.Restore(), a.cfg.Index.Workers,
		index.Options{BatchSize: a.cfg.Index.BatchSize, Logger: a.logger}); err != nil {
		return err
	}

	idx := reg.LookupVector(entity, schema, attr)
	if idx == nil {
		return fmt.Errorf("no vector index on %s %s.%s: %w", entity, schema, attr, storage.ErrNotFound)
	}
	neighbors, err := idx.Nearest(q, k)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, n := range neighbors {
		if err := enc.Encode(map[string]any{"id": n.ID, "score": n.Score}); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"fmt"
	"strings"

	"exam_prep_backend/internal/model"

	"github.com/spf13/cobra"
)

func newTreeCmd(get func() *session) *cobra.Command {
	var examID string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print an exam's hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := get()
			tree, err := s.trees.Get(cmd.Context(), examID)
			if err != nil {
				return err
			}
			if asJSON {
				return s.printJSON(tree.Root)
			}
			printNode(s, tree.Root, 0)
			return nil
		},
	}
	cmd.Flags().StringVar(&examID, "exam", "", "exam id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	_ = cmd.MarkFlagRequired("exam")
	return cmd
}

func printNode(s *session, n model.HierarchyNode, depth int) {
	fmt.Fprintf(s.out, "%s%s %s (%s)\n", strings.Repeat("  ", depth), n.Type, n.Name, n.ID)
	for _, child := range n.Children {
		printNode(s, child, depth+1)
	}
}

func newExamsCmd(get func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "exams",
		Short: "List active exams",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := get()
			exams, err := s.trees.Exams(cmd.Context())
			if err != nil {
				return err
			}
			for _, e := range exams {
				fmt.Fprintf(s.out, "%s\t%s\n", e.ID, e.Name)
			}
			return nil
		},
	}
}

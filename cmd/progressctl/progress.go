package main

import (
	"exam_prep_backend/internal/model"
	"fmt"

	"github.com/spf13/cobra"
)

type unitFlags struct {
	exam    string
	unit    string
	chapter string
}

func (f *unitFlags) bind(cmd *cobra.Command, withChapter bool) {
	cmd.Flags().StringVar(&f.exam, "exam", "", "exam id used to resolve the unit's active chapters")
	cmd.Flags().StringVar(&f.unit, "unit", "", "unit id")
	_ = cmd.MarkFlagRequired("unit")
	if withChapter {
		cmd.Flags().StringVar(&f.chapter, "chapter", "", "chapter id")
		_ = cmd.MarkFlagRequired("chapter")
	}
}

// prepare 加载考试树与单元进度，写操作前必须先加载以建立庆祝基线
func (f *unitFlags) prepare(cmd *cobra.Command, s *session) error {
	if err := s.selectExam(cmd.Context(), f.exam); err != nil {
		return err
	}
	_, err := s.tracker.Load(cmd.Context(), f.unit)
	return err
}

func (s *session) finish(cmd *cobra.Command, unitID string) error {
	if s.api.Authenticated() {
		if err := s.tracker.Sync(cmd.Context()); err != nil {
			fmt.Fprintf(s.out, "warning: changes kept on this device, sync failed: %v\n", err)
		}
	}
	view, _ := s.tracker.View(unitID)
	return s.printJSON(view)
}

func newShowCmd(get func() *session) *cobra.Command {
	f := &unitFlags{}
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show progress for a unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := get()
			if err := s.selectExam(cmd.Context(), f.exam); err != nil {
				return err
			}
			view, err := s.tracker.Load(cmd.Context(), f.unit)
			if err != nil {
				return err
			}
			return s.printJSON(view)
		},
	}
	f.bind(cmd, false)
	return cmd
}

func newVisitCmd(get func() *session) *cobra.Command {
	f := &unitFlags{}
	var itemType, itemID string
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Record a visit to a chapter or one of its items",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := get()
			if err := f.prepare(cmd, s); err != nil {
				return err
			}
			if _, err := s.tracker.RecordVisit(cmd.Context(), f.unit, f.chapter, model.ItemType(itemType), itemID); err != nil {
				return err
			}
			return s.finish(cmd, f.unit)
		},
	}
	f.bind(cmd, true)
	cmd.Flags().StringVar(&itemType, "type", string(model.ItemChapter), "item type: chapter, topic, subtopic or definition")
	cmd.Flags().StringVar(&itemID, "item", "", "item id (not needed for chapter)")
	return cmd
}

func newSetCmd(get func() *session) *cobra.Command {
	f := &unitFlags{}
	var value int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set a chapter's progress manually (0-100)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := get()
			if err := f.prepare(cmd, s); err != nil {
				return err
			}
			if _, err := s.tracker.SetChapterProgress(cmd.Context(), f.unit, f.chapter, value); err != nil {
				return err
			}
			return s.finish(cmd, f.unit)
		},
	}
	f.bind(cmd, true)
	cmd.Flags().IntVar(&value, "value", 0, "progress percentage")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func newDoneCmd(get func() *session) *cobra.Command {
	f := &unitFlags{}
	cmd := &cobra.Command{
		Use:   "done",
		Short: "Mark a chapter as completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := get()
			if err := f.prepare(cmd, s); err != nil {
				return err
			}
			if _, err := s.tracker.MarkDone(cmd.Context(), f.unit, f.chapter); err != nil {
				return err
			}
			return s.finish(cmd, f.unit)
		},
	}
	f.bind(cmd, true)
	return cmd
}

func newResetCmd(get func() *session) *cobra.Command {
	f := &unitFlags{}
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a chapter's progress to zero",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := get()
			if err := f.prepare(cmd, s); err != nil {
				return err
			}
			if _, err := s.tracker.Reset(cmd.Context(), f.unit, f.chapter); err != nil {
				return err
			}
			return s.finish(cmd, f.unit)
		},
	}
	f.bind(cmd, true)
	return cmd
}

func newSubjectCmd(get func() *session) *cobra.Command {
	var subjectID string
	cmd := &cobra.Command{
		Use:   "subject",
		Short: "Show aggregated progress for a subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := get()
			sp, err := s.tracker.RefreshSubject(cmd.Context(), subjectID)
			if err != nil {
				return err
			}
			return s.printJSON(sp)
		},
	}
	cmd.Flags().StringVar(&subjectID, "id", "", "subject id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

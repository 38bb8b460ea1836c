package main

import (
	"context"
	"encoding/json"
	"exam_prep_backend/internal/client"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/pkg/logger"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session 单次命令执行期间共享的客户端组件
type session struct {
	out     io.Writer
	log     *zap.Logger
	api     *client.APIClient
	trees   *client.TreeCache
	tracker *client.ProgressTracker
}

type globalFlags struct {
	server   string
	token    string
	cacheDir string
	timeout  time.Duration
	verbose  bool
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "exam-prep")
	}
	return ".exam-prep"
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	var s *session

	root := &cobra.Command{
		Use:           "progressctl",
		Short:         "Track exam-prep study progress from the terminal",
		Long:          "progressctl records visits and chapter progress against the progress service, mirroring state on this device when offline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			s, err = newSession(cmd.OutOrStdout(), flags)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if s == nil {
				return nil
			}
			s.tracker.Close()
			// stderr 不支持 fsync，忽略 Sync 错误
			_ = s.log.Sync()
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.server, "server", envOr("EXAM_PREP_SERVER", "http://localhost:8080"), "progress service base URL")
	pf.StringVar(&flags.token, "token", os.Getenv("EXAM_PREP_TOKEN"), "bearer token; empty means offline mode")
	pf.StringVar(&flags.cacheDir, "cache-dir", defaultCacheDir(), "directory for the device progress mirror")
	pf.DurationVar(&flags.timeout, "timeout", client.DefaultTimeout, "per-request timeout")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")

	get := func() *session { return s }
	root.AddCommand(
		newShowCmd(get),
		newVisitCmd(get),
		newSetCmd(get),
		newDoneCmd(get),
		newResetCmd(get),
		newSubjectCmd(get),
		newTreeCmd(get),
		newExamsCmd(get),
	)
	root.SetErr(os.Stderr)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newSession(out io.Writer, flags *globalFlags) (*session, error) {
	log := logger.NewCLILogger(flags.verbose)
	api, err := client.NewAPIClient(client.Options{
		BaseURL: flags.server,
		Token:   flags.token,
		Timeout: flags.timeout,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}
	store, err := client.NewFilePersistence(flags.cacheDir)
	if err != nil {
		return nil, fmt.Errorf("open cache dir: %w", err)
	}

	s := &session{out: out, log: log, api: api}
	s.trees = client.NewTreeCache(api, client.TreeCacheOptions{Logger: log})
	s.tracker = client.NewProgressTracker(api, client.NewDeviceMirror(store, log), client.TrackerOptions{
		Chapters:    s.trees.ChapterIDs,
		OnCelebrate: s.celebrate,
		Logger:      log,
	})
	return s, nil
}

func (s *session) celebrate(c client.Celebration) {
	switch c.Kind {
	case model.CelebrationChapter:
		fmt.Fprintf(s.out, "🎉 chapter %s completed\n", c.ChapterID)
	case model.CelebrationUnit:
		fmt.Fprintf(s.out, "🎉 unit %s completed\n", c.UnitID)
	default:
		fmt.Fprintf(s.out, "🎉 subject %s completed\n", c.SubjectID)
	}
}

// selectExam 预取考试层级树，使本地单元进度按启用章节计算
func (s *session) selectExam(ctx context.Context, examID string) error {
	if examID == "" || !s.api.Authenticated() {
		return nil
	}
	if _, err := s.trees.Select(ctx, examID); err != nil {
		return fmt.Errorf("load exam tree: %w", err)
	}
	return nil
}

func (s *session) printJSON(v interface{}) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package controller

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/middleware"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "controller-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	cache  *service.QueryCache
}

func node(id string, order int, status model.ContentStatus) model.TaxonomyNode {
	n := model.TaxonomyNode{Name: strings.ToUpper(id), Order: order, Status: status}
	n.ID = id
	return n
}

// newTestServer e1 → s1 → u1 → {c1, c2}；c1 → t1 → st1 → d1
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&model.Exam{}, &model.Subject{}, &model.Unit{}, &model.Chapter{},
		&model.Topic{}, &model.Subtopic{}, &model.Definition{},
		&model.UnitProgress{}, &model.SubjectProgress{},
	))

	active := model.StatusActive
	rows := []interface{}{
		&model.Exam{TaxonomyNode: node("e1", 1, active)},
		&model.Exam{TaxonomyNode: node("e2", 2, model.StatusInactive)},
		&model.Subject{TaxonomyNode: node("s1", 1, active), ExamID: "e1"},
		&model.Unit{TaxonomyNode: node("u1", 1, active), SubjectID: "s1"},
		&model.Chapter{TaxonomyNode: node("c1", 1, active), UnitID: "u1"},
		&model.Chapter{TaxonomyNode: node("c2", 2, active), UnitID: "u1"},
		&model.Topic{TaxonomyNode: node("t1", 1, active), ChapterID: "c1"},
		&model.Subtopic{TaxonomyNode: node("st1", 1, active), TopicID: "t1"},
		&model.Definition{TaxonomyNode: node("d1", 1, active), SubtopicID: "st1"},
	}
	for _, row := range rows {
		require.NoError(t, db.Create(row).Error)
	}

	progressRepo := repository.NewProgressRepository(db)
	taxonomyRepo := repository.NewTaxonomyRepository(db)
	aggregator := service.NewAggregator(taxonomyRepo, progressRepo, nil)
	t.Cleanup(aggregator.Close)
	progress := service.NewProgressService(progressRepo,
		service.NewProgressCalculator(service.NewItemCounter(taxonomyRepo)), aggregator)
	cache := service.NewQueryCache(time.Minute, 50)
	t.Cleanup(cache.Close)
	taxonomy := service.NewTaxonomyService(taxonomyRepo, cache)

	pc := NewProgressController(progress)
	tc := NewTaxonomyController(taxonomy)
	hc := NewHealthController(db, nil)

	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret}}
	r := gin.New()
	r.GET("/api/health", hc.HealthCheck)
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg))
	{
		api.GET("/progress", pc.GetProgress)
		api.POST("/progress", pc.UpdateChapter)
		api.PUT("/progress", pc.ReplaceUnit)
		api.POST("/progress/track-visit", pc.TrackVisit)
		api.POST("/progress/calculate", pc.Calculate)
		api.POST("/progress/mark-congratulations", pc.MarkCongratulations)
		api.GET("/progress/subjects/:subjectId", pc.GetSubject)
		api.GET("/progress/stream", pc.Stream)
		api.GET("/progress/ws", pc.Socket)
		api.GET("/exams", tc.ListExams)
		api.GET("/exams/:id/tree", tc.ExamTree)
		api.GET("/units/:id/chapters", tc.UnitChapters)
		api.PATCH("/admin/taxonomy/:resource/:id/status", middleware.RoleMiddleware(model.Admin), tc.SetStatus)
	}
	return &testServer{router: r, db: db, cache: cache}
}

func bearer(t *testing.T, userID uint, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"database":"up"`)
	assert.Contains(t, string(env.Data), `"redis":"disabled"`)
}

func TestProgressRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodGet, "/api/progress", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestTrackVisitFlow(t *testing.T) {
	s := newTestServer(t)
	tok := bearer(t, 7, model.Student)

	code, env := s.do(t, http.MethodPost, "/api/progress/track-visit", tok,
		service.TrackVisitRequest{UnitID: "u1", ChapterID: "c1", ItemType: model.ItemChapter})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(t, http.MethodPost, "/api/progress/track-visit", tok,
		service.TrackVisitRequest{UnitID: "u1", ChapterID: "c1", ItemType: model.ItemTopic, ItemID: "t1"})
	require.Equal(t, http.StatusOK, code, env.Message)

	var resp service.ChapterProgressResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 50, resp.ChapterProgress.Progress)
	assert.Equal(t, 50, resp.AutoCalculatedProgress)
	assert.Equal(t, 25, resp.UnitProgress)

	code, env = s.do(t, http.MethodGet, "/api/progress?unitId=u1", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var list []model.UnitSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, []string{"t1"}, list[0].Progress["c1"].VisitedItems.Topics)

	code, env = s.do(t, http.MethodGet, "/api/progress/subjects/s1", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var sp model.SubjectProgress
	require.NoError(t, json.Unmarshal(env.Data, &sp))
	assert.Equal(t, 25, sp.SubjectProgress)

	// 其他学生看不到
	code, env = s.do(t, http.MethodGet, "/api/progress", bearer(t, 8, model.Student), nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestTrackVisitRejectsInvalidItemType(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodPost, "/api/progress/track-visit", bearer(t, 7, model.Student),
		map[string]string{"unitId": "u1", "chapterId": "c1", "itemType": "video", "itemId": "v1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "itemType")
}

func TestCalculateRequiresExistingChapter(t *testing.T) {
	s := newTestServer(t)
	tok := bearer(t, 7, model.Student)

	code, _ := s.do(t, http.MethodPost, "/api/progress/calculate", tok,
		service.CalculateRequest{UnitID: "u1", ChapterID: "c1"})
	assert.Equal(t, http.StatusNotFound, code)

	s.do(t, http.MethodPost, "/api/progress/track-visit", tok,
		service.TrackVisitRequest{UnitID: "u1", ChapterID: "c1", ItemType: model.ItemTopic, ItemID: "t1"})
	code, env := s.do(t, http.MethodPost, "/api/progress/calculate", tok,
		service.CalculateRequest{UnitID: "u1", ChapterID: "c1"})
	require.Equal(t, http.StatusOK, code)
	var resp service.ChapterProgressResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 33, resp.AutoCalculatedProgress)
}

func TestUpdateAndReplaceUnit(t *testing.T) {
	s := newTestServer(t)
	tok := bearer(t, 7, model.Student)

	done := model.NewChapterProgress()
	done.SetManual(100, true)
	code, env := s.do(t, http.MethodPost, "/api/progress", tok,
		service.ChapterUpdateRequest{UnitID: "u1", ChapterID: "c1", Progress: done})
	require.Equal(t, http.StatusOK, code, env.Message)
	var snap model.UnitSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, 50, snap.UnitProgress)
	assert.True(t, snap.Progress["c1"].IsCompleted)

	half := model.NewChapterProgress()
	half.SetManual(60, false)
	code, env = s.do(t, http.MethodPut, "/api/progress", tok,
		service.BulkReplaceRequest{UnitID: "u1", Progress: model.ChapterProgressMap{"c2": half}})
	require.Equal(t, http.StatusOK, code, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.NotContains(t, snap.Progress, "c1")
	assert.Equal(t, 30, snap.UnitProgress)

	code, _ = s.do(t, http.MethodPost, "/api/progress", tok, "not an object")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMarkCongratulations(t *testing.T) {
	s := newTestServer(t)
	tok := bearer(t, 7, model.Student)

	code, _ := s.do(t, http.MethodPost, "/api/progress/mark-congratulations", tok,
		service.MarkCongratulationsRequest{Type: model.CelebrationChapter, UnitID: "u1", ChapterID: "c1"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/progress/mark-congratulations", tok,
		service.MarkCongratulationsRequest{Type: model.CelebrationUnit, UnitID: "u1"})
	assert.Equal(t, http.StatusOK, code)

	code, env := s.do(t, http.MethodGet, "/api/progress?unitId=u1", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var list []model.UnitSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.True(t, list[0].UnitCongratulationsShown)

	code, _ = s.do(t, http.MethodPost, "/api/progress/mark-congratulations", tok,
		map[string]string{"type": "exam"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTaxonomyReads(t *testing.T) {
	s := newTestServer(t)
	student := bearer(t, 7, model.Student)
	teacher := bearer(t, 2, model.Teacher)

	code, env := s.do(t, http.MethodGet, "/api/exams", student, nil)
	require.Equal(t, http.StatusOK, code)
	var page service.ExamPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, util.DefaultLimit, page.Limit)

	code, _ = s.do(t, http.MethodGet, "/api/exams?status=all", student, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, http.MethodGet, "/api/exams?status=all", teacher, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(2), page.Total)

	code, _ = s.do(t, http.MethodGet, "/api/exams?status=draft", teacher, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, http.MethodGet, "/api/exams/e1/tree", student, nil)
	require.Equal(t, http.StatusOK, code)
	var tree model.HierarchyNode
	require.NoError(t, json.Unmarshal(env.Data, &tree))
	require.Len(t, tree.Children, 1)
	assert.Len(t, tree.Children[0].Children[0].Children, 2)

	code, _ = s.do(t, http.MethodGet, "/api/exams/e2/tree", student, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodGet, "/api/units/u1/chapters", student, nil)
	require.Equal(t, http.StatusOK, code)
	var chapters []model.Chapter
	require.NoError(t, json.Unmarshal(env.Data, &chapters))
	assert.Len(t, chapters, 2)
}

func TestAdminStatusToggleInvalidatesCache(t *testing.T) {
	s := newTestServer(t)
	student := bearer(t, 7, model.Student)
	admin := bearer(t, 1, model.Admin)

	code, env := s.do(t, http.MethodGet, "/api/units/u1/chapters", student, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Positive(t, s.cache.Len())

	body := StatusRequest{Status: model.StatusInactive}
	code, _ = s.do(t, http.MethodPatch, "/api/admin/taxonomy/chapters/c2/status", student, body)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, http.MethodPatch, "/api/admin/taxonomy/chapters/c2/status", admin, body)
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(t, http.MethodGet, "/api/units/u1/chapters", student, nil)
	require.Equal(t, http.StatusOK, code)
	var chapters []model.Chapter
	require.NoError(t, json.Unmarshal(env.Data, &chapters))
	require.Len(t, chapters, 1)
	assert.Equal(t, "c1", chapters[0].ID)

	code, _ = s.do(t, http.MethodPatch, "/api/admin/taxonomy/chapters/missing/status", admin, body)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodPatch, "/api/admin/taxonomy/videos/c1/status", admin, body)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestProgressStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()
	tok := bearer(t, 7, model.Student)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/progress/stream?unitId=u1&token="+tok, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	waitFor := func(prefix string) string {
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed before %q", prefix)
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-timeout:
				t.Fatalf("no %q line", prefix)
			}
		}
	}
	waitFor("event:ready")

	s.do(t, http.MethodPost, "/api/progress/track-visit", tok,
		service.TrackVisitRequest{UnitID: "u1", ChapterID: "c1", ItemType: model.ItemChapter})

	waitFor("event:progress")
	data := waitFor("data:")
	assert.Contains(t, data, `"unitId":"u1"`)
	assert.Contains(t, data, `"reason":"track_visit"`)
}

func TestProgressSocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()
	tok := bearer(t, 7, model.Student)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/progress/ws?unitId=u1&token=" + tok
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	read := func() SocketMessage {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg SocketMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	assert.Equal(t, "ready", read().Type)

	s.do(t, http.MethodPost, "/api/progress/track-visit", tok,
		service.TrackVisitRequest{UnitID: "u1", ChapterID: "c1", ItemType: model.ItemChapter})

	msg := read()
	assert.Equal(t, "progress", msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "u1", data["unitId"])
	assert.Equal(t, "track_visit", data["reason"])
}

func TestProgressSocketRequiresUnit(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodGet, "/api/progress/ws", bearer(t, 7, model.Student), nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultTimeout = 15 * time.Second

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// APIClient 进度与层级接口的 HTTP 客户端，错误统一映射为 util 中的错误分类
type APIClient struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	log        *zap.Logger
}

func NewAPIClient(opts Options) (*APIClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &APIClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		timeout:    timeout,
		httpClient: hc,
		log:        log,
	}, nil
}

// Authenticated 未登录时客户端只使用本地镜像
func (c *APIClient) Authenticated() bool {
	return c.token != ""
}

func (c *APIClient) GetProgress(ctx context.Context, unitID string) ([]model.UnitSnapshot, error) {
	q := url.Values{}
	if unitID != "" {
		q.Set("unitId", unitID)
	}
	var out []model.UnitSnapshot
	err := c.doJSON(ctx, http.MethodGet, "/api/progress", q, nil, &out)
	return out, err
}

func (c *APIClient) UpdateChapter(ctx context.Context, req service.ChapterUpdateRequest) (*model.UnitSnapshot, error) {
	var out model.UnitSnapshot
	if err := c.doJSON(ctx, http.MethodPost, "/api/progress", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) ReplaceUnit(ctx context.Context, req service.BulkReplaceRequest) (*model.UnitSnapshot, error) {
	var out model.UnitSnapshot
	if err := c.doJSON(ctx, http.MethodPut, "/api/progress", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) TrackVisit(ctx context.Context, req service.TrackVisitRequest) (*service.ChapterProgressResponse, error) {
	var out service.ChapterProgressResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/progress/track-visit", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Calculate(ctx context.Context, req service.CalculateRequest) (*service.ChapterProgressResponse, error) {
	var out service.ChapterProgressResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/progress/calculate", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) MarkCongratulations(ctx context.Context, req service.MarkCongratulationsRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/api/progress/mark-congratulations", nil, req, nil)
}

func (c *APIClient) GetSubject(ctx context.Context, subjectID string) (*model.SubjectProgress, error) {
	var out model.SubjectProgress
	if err := c.doJSON(ctx, http.MethodGet, "/api/progress/subjects/"+url.PathEscape(subjectID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) ListExams(ctx context.Context, status string, page, limit int) (*service.ExamPage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out service.ExamPage
	if err := c.doJSON(ctx, http.MethodGet, "/api/exams", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) GetExamTree(ctx context.Context, examID string) (*model.HierarchyNode, error) {
	var out model.HierarchyNode
	if err := c.doJSON(ctx, http.MethodGet, "/api/exams/"+url.PathEscape(examID)+"/tree", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", util.ErrValidation, err)
		}
		reader = bytes.NewReader(raw)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", util.ErrValidation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		mapped := transportError(ctx, err)
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(mapped),
		)
		return mapped
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if decodeErr != nil {
			msg = strings.TrimSpace(string(raw))
		}
		return util.StatusError(resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: decode response: %v", util.ErrStore, decodeErr)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", util.ErrStore, err)
	}
	return nil
}

// transportError 区分超时、被新请求取代和网络不可达
func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", util.ErrTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", util.ErrAborted, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", util.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", util.ErrNetwork, err)
}

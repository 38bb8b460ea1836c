package client

import (
	"encoding/json"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"fmt"

	"go.uber.org/zap"
)

// legacyOverallKey 旧版本客户端写入的顶层汇总字段，读取时丢弃
const legacyOverallKey = "overallProgress"

// MirrorRecord 设备端保存的单元进度
type MirrorRecord struct {
	Progress     model.ChapterProgressMap `json:"progress"`
	UnitProgress int                      `json:"unitProgress"`
}

// DeviceMirror 单元进度的本地同步副本，按单元 id 存取
type DeviceMirror struct {
	store LocalPersistence
	log   *zap.Logger
}

func NewDeviceMirror(store LocalPersistence, log *zap.Logger) *DeviceMirror {
	if store == nil {
		store = NewMemoryPersistence()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DeviceMirror{store: store, log: log}
}

func MirrorKey(unitID string) string {
	return util.DeviceProgressKeyPrefix + unitID
}

// Load 返回本地记录；不存在时 ok=false
func (m *DeviceMirror) Load(unitID string) (MirrorRecord, bool, error) {
	raw, ok, err := m.store.Get(MirrorKey(unitID))
	if err != nil || !ok {
		return MirrorRecord{}, false, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return MirrorRecord{}, false, fmt.Errorf("decode mirror %s: %w", unitID, err)
	}
	_, legacy := fields[legacyOverallKey]
	delete(fields, legacyOverallKey)

	var rec MirrorRecord
	if v, ok := fields["progress"]; ok {
		if err := json.Unmarshal(v, &rec.Progress); err != nil {
			return MirrorRecord{}, false, fmt.Errorf("decode mirror %s: %w", unitID, err)
		}
	}
	if v, ok := fields["unitProgress"]; ok {
		if err := json.Unmarshal(v, &rec.UnitProgress); err != nil {
			return MirrorRecord{}, false, fmt.Errorf("decode mirror %s: %w", unitID, err)
		}
	}
	if rec.Progress == nil {
		rec.Progress = model.ChapterProgressMap{}
	}
	for id, cp := range rec.Progress {
		cp.Normalize()
		rec.Progress[id] = cp
	}
	rec.UnitProgress = model.ClampPercent(rec.UnitProgress)

	if legacy {
		m.log.Debug("stripped legacy mirror field", zap.String("unitId", unitID))
		if err := m.Save(unitID, rec); err != nil {
			m.log.Warn("rewrite legacy mirror failed", zap.String("unitId", unitID), zap.Error(err))
		}
	}
	return rec, true, nil
}

func (m *DeviceMirror) Save(unitID string, rec MirrorRecord) error {
	if rec.Progress == nil {
		rec.Progress = model.ChapterProgressMap{}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return m.store.Set(MirrorKey(unitID), raw)
}

func (m *DeviceMirror) Remove(unitID string) error {
	return m.store.Remove(MirrorKey(unitID))
}

package util

const (
	TimeFormat = "2006-01-02 15:04:05"
)

// 状态筛选
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusAll      = "all"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// 设备端缓存键前缀
const DeviceProgressKeyPrefix = "progress_"

// 事件总线主题
const (
	TopicProgressUpdated = "progress.updated"
	TopicCacheInvalidate = "cache.invalidate"
)

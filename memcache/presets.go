package memcache

import "time"

// EmbeddingDefaults 返回嵌入向量缓存的默认预算。
// 向量小且定长，偏向条目数预算，不设字节上限。
func EmbeddingDefaults() Config {
	return Config{
		MaxEntries: 5000,
		MaxBytes:   0,
		TTL:        6 * time.Hour,
	}
}

// ContentDefaults 返回远程内容缓存的默认预算。
// 内容大小差异大，偏向字节上限，条目数较低。
func ContentDefaults() Config {
	return Config{
		MaxEntries: 500,
		MaxBytes:   64 << 20,
		TTL:        30 * time.Minute,
	}
}

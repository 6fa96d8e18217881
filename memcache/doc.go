// Package memcache 提供带 TTL 与 LRU 淘汰的有界进程内缓存。
//
// 同一份泛型实现被实例化两次：嵌入向量缓存（条目数预算，
// 不设字节上限）与远程内容缓存（字节预算优先，条目数较低，
// 可选 Redis 二级）。缓存本身从不返回错误，上游取数失败
// 是调用方的事，缓存只报告命中/未命中。
//
// 预算不变量: 常驻条目数 ≤ MaxEntries 且常驻字节数 ≤ MaxBytes
// （MaxBytes 为 0 表示不设字节上限）。单条超过字节预算一半的
// 条目会在准入时被静默拒绝，保护其余工作集。
package memcache

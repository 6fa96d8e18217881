// Package fallback 实现分层 Provider 回退编排。
//
// 候选按 tier 升序分组（tier 1 最快/最便宜），同 tier 内按连续
// 失败数升序、配置权重降序排序。一次编排开始时对资格做快照，
// 过程中严格按既定顺序尝试，不因健康记录的并发变化重排。
//
// 每个候选带独立超时，超时即记为 timeout 并前进，迟到的结果被
// 丢弃；整体截止时间到达后放弃剩余候选。全部候选耗尽时返回
// 携带完整尝试轨迹的 ExhaustedError，而不是一个不透明错误。
// 同一 Provider 在一次编排内不重试。
package fallback

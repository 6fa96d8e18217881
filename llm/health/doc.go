// Package health 提供按 Provider 的用量计数与健康跟踪。
//
// 每个 Provider 一条健康记录：分钟/日/月三个窗口的请求计数
// （日历周期回卷）、连续失败次数、最近延迟与派生状态
// （healthy/degraded/unavailable）。记录只被编排器在每次尝试后
// 更新，被候选排序与资格过滤读取，从不删除。
//
// 计数器按 Provider 粒度加锁，跨 Provider 无全局锁；
// 启动时未知的历史用量按零处理（fail open）。
package health

/*
Package testutil 提供 StudyFlow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup
  - 时钟辅助: FixedClock，可手动推进的确定性时钟
  - 子包 testutil/mocks: MockProvider（LLM Provider）与
    MockEmbedder（嵌入 Provider），支持 Builder 模式与错误注入

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider("alpha").WithResponse("hello")
	resp, err := provider.Completion(ctx, req)
*/
package testutil

/*
Package testutil 提供 StudyBuddy 测试的共享工具。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，
    自动注册 Cleanup 防止泄漏
  - Mock 实现: FakeEmbedder（确定性嵌入，支持错误注入）、
    ScriptedLLM（按脚本应答的生成模型）、
    ScriptedSearch（预置结果的网络搜索）

# 使用示例

	ctx := testutil.TestContext(t)
	emb := testutil.NewFakeEmbedder(8)
	search := testutil.NewScriptedSearch(results...)
*/
package testutil

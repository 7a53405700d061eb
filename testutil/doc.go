// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 AssetFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为引擎、命令行与各组件的测试提供统一的辅助能力，
避免各包重复实现源站、场景模拟与异步断言。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor
  - 加载事件: CollectEvents / EventTypes，读取 loader.Task 的事件流
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual

# 子包

  - testutil/mocks: MockTier（缓存层，支持错误注入与延迟）、
    MockAsset / MockMaterial / MockNode（质量控制器场景）、
    MockRenderStats（渲染统计来源）
  - testutil/fixtures: OriginServer（支持 Range 的源站）、确定性负载、
    各类设备的 User-Agent

# 使用示例

	ctx := testutil.TestContext(t)
	origin := fixtures.NewOriginServer(t, fixtures.Payload(64<<10))
	task := l.Start(ctx, origin.URL+"/scene.glb", loader.Options{})
	events := testutil.CollectEvents(t, task.Events(), 5*time.Second)
*/
package testutil

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 device 提供设备能力分级（mobile / tablet / desktop）与渲染优化配置。

# 概述

本包在进程启动时对运行设备（或远端客户端）做一次性探测与分级，
得到不可变的 CapabilityProfile，并据此推导渲染器配置与质量控制策略。
分级结果会被缓存，只有显式调用 Reset 才会重新计算。

# 核心类型

  - Environment：探测输入（UA、屏幕尺寸、触点数、CPU 核数以及可选的
    内存、电池、GPU 信息）。
  - Option：可选能力值，缺失时以 "unknown" 呈现，不会导致失败。
  - CapabilityProfile：分级结果，包含多边形预算、文件大小上限、内存上限
    与推荐格式集合。
  - Classifier：带记忆化的分级器。
  - Settings / QualityPolicy：由分级结果推导的渲染配置与 LOD 策略。

# 使用方式

	c := device.NewClassifier(device.HostEnvironment(), logger)
	profile := c.Classify()
	settings := device.OptimizationSettingsFor(profile)
	policy := device.QualityPolicyFor(profile)
*/
package device

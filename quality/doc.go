// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 quality 实现自适应细节等级（LOD）控制与渲染性能监控。

# 概述

Controller 把两路信号组合为一个反馈环：

  - 距离驱动：每帧按视点到资源的距离选择等级，首个阈值 ≥ 距离的等级
    生效，没有匹配时使用最后一级。等级未变化时不做任何修改。
  - 性能驱动：每个采样窗口（默认 60 帧）计算帧率，低于下限且设备策略
    允许时强制开启降级，高于上限且策略允许时关闭并恢复到 0 级。

等级作用于材质（粗糙度、金属度偏移，低于阈值时关闭细节贴图）以及
场景节点（最低等级隐藏小物体）。所有修改都以注册时记录的基线为起点
计算，重复应用同一等级不会产生变化，应用 0 级完全恢复原貌。

PerformanceMonitor 汇总帧率、渲染统计与网络统计，输出 0–100 的健康分
与优化建议。它只读，不会修改任何渲染状态。

# 场景抽象

渲染器在本包之外。调用方以 Asset、Material、Node 接口提供可变的场景
对象，Controller 在多帧之间修改同一批对象。
*/
package quality

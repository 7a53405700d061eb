// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 loader 负责按 URL 获取 3D 模型字节，并根据实时网络遥测在三种
加载策略之间选择。

# 加载策略

  - Streaming：先用 HEAD 探测总大小，按 256KiB 切分为分块，按优先级
    （前 3 块 high，索引 >10 为 low，其余 medium）在全局并发上限内
    并行拉取，全部到齐后按偏移组装。
  - Progressive：先取 ≤1MiB 的首段立即发出 FirstChunk 事件用于预览，
    再一次性拉取剩余部分并拼接。
  - Standard：单次 GET，根据 Content-Length 发出进度事件。

策略由 Classify 纯函数决定，输入为平滑后的网速与调用方提示。

# 任务与事件

Start 返回 Task，通过 Events() 接收 FirstChunk / Progress / Complete /
Error 事件（进度严格先于完成，终止事件后通道关闭），Wait() 获取最终
结果。Load 是 Start + Wait 的便捷封装。

# 缓存与预加载

命中缓存时不发起任何网络请求；网络加载成功后同步写回缓存。
Preload 将 URL 放入有界优先级队列，Run 启动的节拍循环在并发预算
允许时按优先级取出并以低优先级加载，失败只记录日志。
CancelLoad 移出队列并丢弃该 URL 在途任务的结果。
*/
package loader

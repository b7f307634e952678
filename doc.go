// Package roomrelay 提供一個瀏覽器多人遊戲的房間 / 會話中繼服務器。
//
// 客戶端透過持久 WebSocket 連接創建或加入房間，服務器追蹤每個
// 房間的成員與最後已知位置，並把移動 / 加入 / 離開事件扇出給
// 正確的連接子集。渲染、物理、身份驗證都不在此處：服務器只
// 關心與客戶端交換的消息形狀。
//
// # 核心組件
//
// 依賴方向由下而上：
//   - Store：roomID → 房間狀態（成員列表、各成員最後位置）的
//     內存映射，純數據加不變量維護，無 I/O
//   - Allocator：創建或加入房間的策略，包括房間代碼生成
//   - Coordinator：編排組件——接收入站事件、經 Allocator 變更
//     Store、計算出站事件及其接收者
//   - Registry：追蹤存活連接與「連接 ↔ 玩家 ID」映射，
//     其他組件不直接接觸傳輸層
//
// 數據流：
//
//	客戶端 → Registry（原始事件）→ Coordinator（驗證、寫入 Store）
//	       → Coordinator 計算廣播集 → Registry（逐連接發送）
//
// # 順序與並發
//
// 所有入站事件匯入單一協調器 goroutine 逐一處理到完成，
// 因此單房間內事件嚴格按接收順序生效；跨房間事件相互獨立。
//
// # 線協議
//
// 消息雙向共用 {"event": string, "data": object} 信封。
//
// 客戶端 → 服務器：createOrJoinRoom、joinRoom、playerMovement
// （別名 playerMove）、leaveRoom。
//
// 服務器 → 客戶端：roomJoined、playerJoined、playerMoved、
// playerLeft、errorEvent。
//
// # 使用範例
//
// 啟動服務器：
//
//	store := internal.NewStore(logger, 30*time.Minute)
//	alloc := internal.NewAllocator(store, logger)
//	registry := internal.NewRegistry(store, logger)
//	coordinator := internal.NewCoordinator(store, alloc, registry, logger)
//	hub := internal.NewHub(registry, coordinator, logger)
//
//	http.HandleFunc("GET /ws", hub.ServeWS)
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # 配置選項
//
// 支援 yaml 配置文件加命令行覆蓋：
//   - -config：配置文件路徑
//   - -port：服務監聽端口（預設 8080）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
package roomrelay

// Package internal 提供估點（Planning Poker）房間的即時狀態同步。
//
// 多位參與者透過 WebSocket 連到同一個房間，各自出牌估點；
// 公開之前所有人只看得到「誰投了」，公開之後才看得到票值與統計。
//
// # 房間模型
//
// 每個房間由三個部分組成：
//   - Room：參與者、票、公開狀態、是否允許改票
//   - Dispatcher：依抵達順序逐一處理事件（權限檢查 → 修改 → 通知）
//   - Coalescer：把短時間內的多次修改合併成一次 room-update 廣播
//
// 身分以顯示名稱為準：同名重新加入沿用原本的參與者 ID、角色與票；
// 名稱結尾帶 "_admin" 表示要求管理員，房間同時最多一位管理員。
//
// # 角色
//
//	Admin          投票、公開、重置、改角色、切換改票
//	Co-Admin       投票、公開、重置
//	Dev            投票
//	Product Owner  旁觀
//	Observer       旁觀
//
// # WebSocket 通訊
//
// 訊息格式一律為 {"event": "...", "data": {...}}：
//
//	→ join / vote / reveal / reset / toggle-vote-change / change-role
//	  send-emoji / send-chat-message / ping
//	← joined / room-update / voted / vote-recorded / revealed / reset-done
//	  emoji-flying / emoji-received / chat-message / pong / error
//
// 連線入口：
//
//	/ws                  預設房間
//	/ws/rooms/{room_id}  指定房間（不存在就建立）
//
// # 使用範例
//
//	hub := internal.NewWebSocketHub(logger, nil)
//	manager := internal.NewManager(internal.DefaultManagerConfig(), hub, nil, logger)
//	handler := internal.NewHandler(manager, hub, nil, logger)
//	log.Fatal(http.ListenAndServe(":8080", handler.Routes()))
//
// # 快照鏡像
//
// 每次實際廣播的房間快照可以非同步寫入 storage 套件（memory / redis / sqlite），
// 只作為除錯與觀察用途；記憶體中的房間永遠是唯一的真實來源。
package internal

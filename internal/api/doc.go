// Package api 設定 HTTP 與 WebSocket 路由。
//
// handlers 子套件把 HTTP 請求轉換為 service 呼叫，並把結果轉回 JSON 響應；
// WebSocket 連線升級後交給 service.WebSocketService 處理。
package api

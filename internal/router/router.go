package router

import (
	"yoforex/internal/handlers"
	"yoforex/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Admin        *handlers.AdminHandler
	User         *handlers.UserHandler
	Forum        *handlers.ForumHandler
	Notification *handlers.NotificationHandler
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler())) // Prometheus 指标

	// 论坛写入 (Forum write path)
	authorized := r.Group("/")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.POST("/threads", h.Forum.CreateThread)            // 发布主题
		authorized.POST("/threads/:id/replies", h.Forum.CreateReply) // 发表回复

		authorized.POST("/notifications/:id/read", h.Notification.Read)    // 标记单条通知为已读
		authorized.POST("/notifications/read-all", h.Notification.ReadAll) // 全部通知标记为已读
	}

	// 仪表盘路由 (Dashboard Routes)
	dashboard := r.Group("/dashboard")
	dashboard.Use(middleware.AuthRequired())
	{
		dashboard.GET("/vault", h.User.Vault)                    // 金库概览
		dashboard.POST("/vault/claim", h.User.ClaimVault)        // 领取已解锁金币
		dashboard.GET("/badges", h.User.Badges)                  // 徽章进度
		dashboard.POST("/badges/:type/claim", h.User.ClaimBadge) // 领取徽章
		dashboard.GET("/retention", h.User.Retention)            // 留存分数
		dashboard.GET("/notifications", h.Notification.List)     // 我的通知列表
	}

	// 管理后台 (Admin Routes)
	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
	{
		admin.GET("/treasury", h.Admin.Treasury)                // 金库概览
		admin.POST("/treasury/refill", h.Admin.Refill)          // 金库充值
		admin.POST("/treasury/policy", h.Admin.Policy)          // 每日上限/激进程度
		admin.POST("/economy/settings", h.Admin.UpdateSettings) // 经济系统设置

		admin.GET("/bots", h.Admin.ListBots)              // bot 列表
		admin.POST("/bots", h.Admin.CreateBot)            // 创建 bot
		admin.POST("/bots/run", h.Admin.RunEngine)        // 立即运行引擎
		admin.GET("/bots/analytics", h.Admin.Analytics)   // 支出分析
		admin.GET("/bots/:id", h.Admin.GetBot)            // bot 详情
		admin.PUT("/bots/:id", h.Admin.UpdateBot)         // 更新 bot
		admin.DELETE("/bots/:id", h.Admin.DeleteBot)      // 删除 bot
		admin.POST("/bots/:id/toggle", h.Admin.ToggleBot) // 启用/停用
	}
}

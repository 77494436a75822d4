package master

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"vendmaster/internal/app/master/middleware"
	"vendmaster/internal/config"
	commandHandler "vendmaster/internal/handler/command"
	deviceHandler "vendmaster/internal/handler/device"
	orderHandler "vendmaster/internal/handler/order"
	systemHandler "vendmaster/internal/handler/system"
	authPkg "vendmaster/internal/pkg/auth"
	"vendmaster/internal/pkg/logger"
	commandRepo "vendmaster/internal/repo/mysql/command"
	deviceRepo "vendmaster/internal/repo/mysql/device"
	orderRepo "vendmaster/internal/repo/mysql/order"
	systemRepo "vendmaster/internal/repo/mysql/system"
	redisRepo "vendmaster/internal/repo/redis"
	commandService "vendmaster/internal/service/command"
	deviceService "vendmaster/internal/service/device"
	orderService "vendmaster/internal/service/order"
	systemService "vendmaster/internal/service/system"
	"vendmaster/internal/websocket"
)

// Router 路由管理器
type Router struct {
	engine            *gin.Engine
	middlewareManager *middleware.MiddlewareManager
	commandHandler    *commandHandler.CommandHandler
	deviceHandler     *deviceHandler.DeviceHandler
	manageHandler     *deviceHandler.ManageHandler
	orderHandler      *orderHandler.OrderHandler
	systemHandler     *systemHandler.SystemHandler
	wsHandler         *websocket.Handler
	wsConfig          config.WebSocketConfig

	queue   *commandService.DispatchQueue
	sweeper *commandService.TimeoutSweeper
	hub     *websocket.Hub
}

// NewRouter 创建路由管理器实例
// 完成仓库->服务->处理器的依赖装配，队列与Hub的互相引用通过setter解决
func NewRouter(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Router {
	// 初始化工具包
	jwtManager := authPkg.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, cfg.Security.JWT.AccessTokenExpire)

	// 仓库层(纯数据访问层)
	cmdRepo := commandRepo.NewCommandRepository(db)
	devRepo := deviceRepo.NewDeviceRepository(db)
	ordRepo := orderRepo.NewOrderRepository(db)
	oplogRepo := systemRepo.NewOperationLogRepository(db)
	userRepo := systemRepo.NewUserRepository(db)
	presenceRepo := redisRepo.NewPresenceRepository(redisClient)

	// 服务层(控制器是服务集合,先初始化服务,然后服务装填成控制器)
	oplogSvc := systemService.NewOperationLogService(oplogRepo)
	userSvc := systemService.NewUserService(userRepo)
	dashboardSvc := systemService.NewDashboardService(devRepo, ordRepo, cmdRepo, presenceRepo)
	devSvc := deviceService.NewDeviceService(devRepo, presenceRepo)
	ordSvc := orderService.NewOrderService(ordRepo, devRepo)

	queue := commandService.NewDispatchQueue(cmdRepo, devRepo, cfg.Dispatch.QueueSize, cfg.Dispatch.OutboxScanInterval, cfg.Dispatch.OutboxScanLimit)
	dispatchSvc := commandService.NewDispatchService(cmdRepo, devRepo, queue, oplogSvc, cfg.Dispatch)
	reconcileSvc := commandService.NewReconcileService(cmdRepo, devRepo)
	sweeper := commandService.NewTimeoutSweeper(cmdRepo, cfg.Dispatch.SweepInterval)

	// WebSocket Hub 既是队列的Pusher也是回收服务的Broadcaster
	hub := websocket.NewHub(devSvc, reconcileSvc, dispatchSvc, presenceRepo, jwtManager, cfg.Dispatch.PresenceTTL)
	queue.SetPusher(hub)
	reconcileSvc.SetBroadcaster(hub)

	// 初始化中间件管理器
	middlewareManager := middleware.NewMiddlewareManager(jwtManager, &cfg.Security)

	// 创建Gin引擎
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Router{
		engine:            engine,
		middlewareManager: middlewareManager,
		commandHandler:    commandHandler.NewCommandHandler(dispatchSvc),
		deviceHandler:     deviceHandler.NewDeviceHandler(devSvc, reconcileSvc, ordSvc),
		manageHandler:     deviceHandler.NewManageHandler(devSvc),
		orderHandler:      orderHandler.NewOrderHandler(ordSvc),
		systemHandler:     systemHandler.NewSystemHandler(dashboardSvc, oplogSvc, userSvc),
		wsHandler:         websocket.NewHandler(hub, &cfg.WebSocket),
		wsConfig:          cfg.WebSocket,
		queue:             queue,
		sweeper:           sweeper,
		hub:               hub,
	}
}

// SetupRoutes 设置路由
func (r *Router) SetupRoutes() {
	// 设置全局中间件
	r.engine.Use(r.middlewareManager.GinRequestIDMiddleware())
	r.engine.Use(r.middlewareManager.GinCORSMiddleware())
	r.engine.Use(r.middlewareManager.GinSecurityHeadersMiddleware())
	r.engine.Use(r.middlewareManager.GinLoggingMiddleware()) // 日志中间件注册

	api := r.engine.Group("/api")

	// 设备侧路由（设备固件调用，不走JWT）
	r.setupDeviceRoutes(api)

	// 指令管理路由（需要JWT认证）
	r.setupCommandRoutes(api)

	// 管理端路由（需要JWT认证）
	r.setupManageRoutes(api)

	// WebSocket接入，路径与开关走配置，关闭后设备回退HTTP轮询
	if r.wsConfig.Enabled {
		wsPath := r.wsConfig.Path
		if wsPath == "" {
			wsPath = "/ws"
		}
		r.engine.GET(wsPath, r.wsHandler.Serve)
	}

	// 健康检查路由
	r.setupHealthRoutes(api)
}

// setupDeviceRoutes 设置设备侧路由
func (r *Router) setupDeviceRoutes(api *gin.RouterGroup) {
	devices := api.Group("/devices")
	{
		// 设备注册
		devices.POST("/register", r.deviceHandler.Register)
		// 状态上报
		devices.POST("/:device_id/status", r.deviceHandler.ReportStatus)
		// 物料上报
		devices.POST("/:device_id/materials", r.deviceHandler.ReportMaterials)
		// 待执行指令轮询(pending随查询翻转为sent)
		devices.GET("/:device_id/commands/pending", r.deviceHandler.PollPending)
		// 指令结果上报
		devices.POST("/:device_id/command_result", r.deviceHandler.ReportCommandResult)
		// 订单上报
		devices.POST("/:device_id/orders", r.deviceHandler.CreateOrder)
	}
}

// setupCommandRoutes 设置指令管理路由
func (r *Router) setupCommandRoutes(api *gin.RouterGroup) {
	commands := api.Group("/commands")
	commands.Use(r.middlewareManager.GinJWTAuthMiddleware())
	{
		// 批量下发指令
		commands.POST("/dispatch", r.commandHandler.Dispatch)
		// 批次摘要列表
		commands.GET("/batches", r.commandHandler.ListBatches)
		// 批次指令明细
		commands.GET("/batches/:batch_id", r.commandHandler.GetBatchDetail)
		// 批次重试
		commands.POST("/batches/:batch_id/retry", r.commandHandler.RetryBatch)
	}
}

// setupManageRoutes 设置管理端路由
func (r *Router) setupManageRoutes(api *gin.RouterGroup) {
	manage := api.Group("/manage")
	manage.Use(r.middlewareManager.GinJWTAuthMiddleware())
	{
		// 设备管理
		manage.GET("/devices", r.manageHandler.GetDevices)
		manage.GET("/devices/:device_id", r.manageHandler.GetDevice)
		manage.GET("/devices/:device_id/bins", r.manageHandler.GetDeviceBins)

		// 订单管理
		manage.GET("/orders", r.orderHandler.GetOrders)
		manage.GET("/products", r.orderHandler.GetProducts)

		// 运营大盘
		manage.GET("/dashboard", r.systemHandler.GetDashboard)
		// 操作日志(全局审计数据，不做商户过滤，仅超级管理员可见)
		manage.GET("/operation-logs", r.middlewareManager.GinRequireSuperAdmin(), r.systemHandler.GetOperationLogs)
		// 运营用户(只读)
		manage.GET("/users", r.systemHandler.GetUsers)
		manage.GET("/users/:id", r.systemHandler.GetUser)
	}
}

// setupHealthRoutes 设置健康检查路由
func (r *Router) setupHealthRoutes(api *gin.RouterGroup) {
	// 健康检查
	api.GET("/health", r.healthCheck)
	// 存活检查
	api.GET("/live", r.livenessCheck)
}

// GetEngine 获取Gin引擎实例
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// GetQueue 获取指令投递队列
func (r *Router) GetQueue() *commandService.DispatchQueue {
	return r.queue
}

// GetSweeper 获取指令超时清扫器
func (r *Router) GetSweeper() *commandService.TimeoutSweeper {
	return r.sweeper
}

// 健康检查处理器
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": logger.NowFormatted(),
	})
}

func (r *Router) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": logger.NowFormatted(),
	})
}

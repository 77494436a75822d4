/**
 * 应用装配
 * @author: sun977
 * @date: 2026.03.27
 * @description: 加载配置、初始化日志/数据库/Redis、装配路由并管理后台任务生命周期
 * @func: NewApp / Start / Stop
 */
package master

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vendmaster/internal/config"
	commandModel "vendmaster/internal/model/command"
	deviceModel "vendmaster/internal/model/device"
	orderModel "vendmaster/internal/model/order"
	systemModel "vendmaster/internal/model/system"
	"vendmaster/internal/pkg/database"
	"vendmaster/internal/pkg/logger"
)

// App 应用程序结构体
type App struct {
	config      *config.Config
	configPath  string
	env         string
	db          *gorm.DB
	redisClient *redis.Client
	router      *Router

	cancelQueue context.CancelFunc
}

// NewApp 创建新的应用程序实例
// configPath为空时使用默认查找路径，env为空时从环境变量推断
func NewApp(configPath, env string) (*App, error) {
	// 加载配置
	cfg, err := config.LoadConfig(configPath, env)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	// 初始化日志
	if _, err := logger.InitLogger(&cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	// 初始化MySQL
	db, err := database.NewMySQLConnection(&cfg.Database.MySQL)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	// 表结构迁移
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	// 初始化Redis
	redisClient, err := database.NewRedisConnection(&cfg.Database.Redis)
	if err != nil {
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	// 装配路由
	router := NewRouter(db, redisClient, cfg)
	router.SetupRoutes()

	return &App{
		config:      cfg,
		configPath:  configPath,
		env:         env,
		db:          db,
		redisClient: redisClient,
		router:      router,
	}, nil
}

// autoMigrate 迁移全部业务表
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&deviceModel.Device{},
		&deviceModel.DeviceStatusLog{},
		&deviceModel.DeviceBin{},
		&deviceModel.Material{},
		&commandModel.Command{},
		&commandModel.CommandResultRecord{},
		&orderModel.Order{},
		&orderModel.Product{},
		&systemModel.User{},
		&systemModel.OperationLog{},
	)
}

// GetConfig 获取应用配置
func (a *App) GetConfig() *config.Config {
	return a.config
}

// GetRouter 获取路由器实例
func (a *App) GetRouter() *Router {
	return a.router
}

// Start 启动后台任务(指令投递队列与超时清扫器)
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelQueue = cancel

	a.router.GetQueue().Start(ctx)
	if err := a.router.GetSweeper().Start(); err != nil {
		cancel()
		return fmt.Errorf("启动超时清扫器失败: %w", err)
	}

	// 配置文件热加载(失败不影响启动)
	if err := config.StartConfigWatcher(a.configPath, a.env); err != nil {
		logger.LogSystemEvent("app", "config_watcher", "配置监听器启动失败", logrus.WarnLevel, map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		// 日志级别/格式热更新，其余变更只提示
		_ = config.AddConfigReloadCallback(func(oldCfg, newCfg *config.Config) error {
			if logger.LoggerInstance == nil {
				return nil
			}
			return logger.LoggerInstance.UpdateConfig(&newCfg.Log)
		})
		_ = config.AddConfigReloadCallback(config.DispatchConfigReloadCallback)
	}

	logger.LogSystemEvent("app", "startup", "应用后台任务已启动", logrus.InfoLevel, map[string]interface{}{
		"app":     a.config.App.Name,
		"version": a.config.App.Version,
	})

	return nil
}

// Stop 停止后台任务并释放连接
func (a *App) Stop() error {
	_ = config.StopConfigWatcher()

	if a.cancelQueue != nil {
		a.cancelQueue()
		a.router.GetQueue().Wait()
	}
	a.router.GetSweeper().Stop()

	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	logger.LogSystemEvent("app", "shutdown", "应用已停止", logrus.InfoLevel, nil)

	return nil
}

package command

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"vendmaster/internal/config"
	"vendmaster/internal/model/basemodel"
	commandModel "vendmaster/internal/model/command"
	deviceModel "vendmaster/internal/model/device"
	systemModel "vendmaster/internal/model/system"
	commandRepo "vendmaster/internal/repo/mysql/command"
	deviceRepo "vendmaster/internal/repo/mysql/device"
	systemRepo "vendmaster/internal/repo/mysql/system"
	systemService "vendmaster/internal/service/system"
)

// testEnv 内存SQLite上的指令服务集成测试环境
type testEnv struct {
	db        *gorm.DB
	cmdRepo   commandRepo.CommandRepository
	devRepo   deviceRepo.DeviceRepository
	queue     *DispatchQueue
	dispatch  DispatchService
	reconcile ReconcileService
	sweeper   *TimeoutSweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&deviceModel.Device{},
		&commandModel.Command{},
		&commandModel.CommandResultRecord{},
		&systemModel.OperationLog{},
	))

	cmdRepo := commandRepo.NewCommandRepository(db)
	devRepo := deviceRepo.NewDeviceRepository(db)
	oplogSvc := systemService.NewOperationLogService(systemRepo.NewOperationLogRepository(db))

	// 队列不启动worker，Submit只写入唤醒通道
	queue := NewDispatchQueue(cmdRepo, devRepo, 64, time.Second, 20)

	cfg := config.DispatchConfig{
		DefaultTimeout:  300,
		MaxBatchDevices: 100,
	}

	return &testEnv{
		db:        db,
		cmdRepo:   cmdRepo,
		devRepo:   devRepo,
		queue:     queue,
		dispatch:  NewDispatchService(cmdRepo, devRepo, queue, oplogSvc, cfg),
		reconcile: NewReconcileService(cmdRepo, devRepo),
		sweeper:   NewTimeoutSweeper(cmdRepo, time.Minute),
	}
}

func (e *testEnv) seedDevice(t *testing.T, deviceNo string, merchantID uint64) *deviceModel.Device {
	t.Helper()

	device := &deviceModel.Device{
		DeviceNo:   deviceNo,
		MerchantID: merchantID,
		APIKey:     "key-" + deviceNo,
		Status:     deviceModel.StatusOffline,
	}
	require.NoError(t, e.devRepo.Create(device))

	return device
}

var superadmin = Operator{UserID: 1, Username: "root", Role: "superadmin"}

func TestDispatchPartialSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)
	env.seedDevice(t, "VM-002", 1)

	resp, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-001", "VM-002", "VM-GHOST"},
		CommandType: "restart",
		Payload:     map[string]interface{}{"delay": float64(5)},
	}, "127.0.0.1", "req-1")
	require.NoError(t, err)
	require.NotNil(t, resp)

	// 无效设备跳过，有效设备全部下发
	assert.True(t, resp.OK)
	assert.Equal(t, 2, resp.IssuedCount)
	assert.NotEmpty(t, resp.BatchID)

	details, err := env.dispatch.GetBatchDetail(superadmin, resp.BatchID)
	require.NoError(t, err)
	require.Len(t, details, 2)
	for _, d := range details {
		assert.Equal(t, commandModel.StatusPending, d.Status)
		assert.Equal(t, "restart", d.CommandType)
	}
}

func TestDispatchValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	_, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{},
		CommandType: "restart",
	}, "", "")
	assert.ErrorIs(t, err, ErrEmptyDeviceList)

	_, err = env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-GHOST-1", "VM-GHOST-2"},
		CommandType: "restart",
	}, "", "")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestDispatchBatchLimit(t *testing.T) {
	env := newTestEnv(t)
	limited := NewDispatchService(env.cmdRepo, env.devRepo, env.queue, systemService.NewOperationLogService(systemRepo.NewOperationLogRepository(env.db)), config.DispatchConfig{
		DefaultTimeout:  300,
		MaxBatchDevices: 2,
	})

	_, err := limited.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-1", "VM-2", "VM-3"},
		CommandType: "restart",
	}, "", "")
	assert.ErrorIs(t, err, ErrTooManyDevices)
}

func TestDispatchMerchantScope(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-A", 1)
	env.seedDevice(t, "VM-B", 2)

	merchantOp := Operator{UserID: 2, Username: "m1-admin", Role: "merchant_admin", MerchantID: 1}

	// 他商户设备对当前操作者不可见，整批只剩无效目标
	_, err := env.dispatch.Dispatch(merchantOp, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-B"},
		CommandType: "restart",
	}, "", "")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	resp, err := env.dispatch.Dispatch(merchantOp, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-A", "VM-B"},
		CommandType: "restart",
	}, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.IssuedCount)
}

func TestDispatchDefaultTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	resp, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-001"},
		CommandType: "restart",
	}, "", "")
	require.NoError(t, err)

	details, err := env.dispatch.GetBatchDetail(superadmin, resp.BatchID)
	require.NoError(t, err)
	require.Len(t, details, 1)

	cmd, err := env.cmdRepo.GetByCommandID(details[0].CommandID)
	require.NoError(t, err)
	assert.Equal(t, 300, cmd.TimeoutSeconds)
}

func TestDispatchSingle(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	cmd, err := env.dispatch.DispatchSingle(superadmin, "VM-001", "make_coffee",
		map[string]interface{}{"recipe": "latte"}, 5, 0)
	require.NoError(t, err)

	assert.Equal(t, commandModel.ChannelWebSocket, cmd.Channel)
	assert.Empty(t, cmd.BatchID, "单发指令不归属批次")
	assert.Equal(t, 300, cmd.TimeoutSeconds)

	// 商户范围外的设备不可直发
	merchantOp := Operator{UserID: 2, Username: "m2-admin", Role: "merchant_admin", MerchantID: 2}
	_, err = env.dispatch.DispatchSingle(merchantOp, "VM-001", "make_coffee", nil, 0, 0)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestPollPendingFlipsToSent(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	resp, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-001"},
		CommandType: "restart",
	}, "", "")
	require.NoError(t, err)

	pending, err := env.reconcile.PollPending("VM-001")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "restart", pending[0].Type)

	cmd, err := env.cmdRepo.GetByCommandID(pending[0].CommandID)
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusSent, cmd.Status, "轮询读取副作用应把pending翻转为sent")

	// 重复轮询幂等：sent指令照常返回，集合不膨胀
	again, err := env.reconcile.PollPending("VM-001")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, pending[0].CommandID, again[0].CommandID)

	_ = resp
}

func TestPollPendingUnknownDevice(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reconcile.PollPending("VM-GHOST")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestReportResultFullFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	resp, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-001"},
		CommandType: "restart",
	}, "", "")
	require.NoError(t, err)

	pending, err := env.reconcile.PollPending("VM-001")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	err = env.reconcile.ReportResult("VM-001", &commandModel.ResultReportRequest{
		CommandID: pending[0].CommandID,
		Status:    "success",
		Result:    map[string]interface{}{"uptime": float64(12)},
	}, "127.0.0.1")
	require.NoError(t, err)

	cmd, err := env.cmdRepo.GetByCommandID(pending[0].CommandID)
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusSuccess, cmd.Status)
	assert.NotNil(t, cmd.ResultAt)

	// 批次摘要随结果更新
	summaries, total, err := env.dispatch.ListBatches(superadmin, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, summaries, 1)
	assert.Equal(t, resp.BatchID, summaries[0].BatchID)
	assert.Equal(t, int64(1), summaries[0].Success)

	// 审计表留痕
	var auditCount int64
	require.NoError(t, env.db.Model(&commandModel.CommandResultRecord{}).Count(&auditCount).Error)
	assert.Equal(t, int64(1), auditCount)
}

func TestReportResultPayloadAndTime(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	_, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-001"},
		CommandType: "make_coffee",
	}, "", "")
	require.NoError(t, err)

	pending, err := env.reconcile.PollPending("VM-001")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// result_payload与result_at按设备上报内容落账
	reportedAt := time.Now().Add(-2 * time.Minute).UTC().Truncate(time.Second)
	err = env.reconcile.ReportResult("VM-001", &commandModel.ResultReportRequest{
		CommandID:     pending[0].CommandID,
		Status:        "success",
		ResultPayload: map[string]interface{}{"cup": "large"},
		ResultAt:      reportedAt.Format(time.RFC3339),
	}, "127.0.0.1")
	require.NoError(t, err)

	cmd, err := env.cmdRepo.GetByCommandID(pending[0].CommandID)
	require.NoError(t, err)
	assert.Equal(t, "large", cmd.ResultPayload["cup"])
	require.NotNil(t, cmd.ResultAt)
	assert.True(t, cmd.ResultAt.Equal(reportedAt), "result_at应取设备上报时间")
}

func TestReportResultUnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	// 未知command_id不报错，审计表仍留痕
	err := env.reconcile.ReportResult("VM-001", &commandModel.ResultReportRequest{
		CommandID: "cmd-ghost",
		Status:    "fail",
		Message:   "grinder jam",
	}, "127.0.0.1")
	require.NoError(t, err)

	var records []*commandModel.CommandResultRecord
	require.NoError(t, env.db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, "cmd-ghost", records[0].CommandID)
	assert.False(t, records[0].Success)
}

func TestReportResultDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	_, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-001"},
		CommandType: "restart",
	}, "", "")
	require.NoError(t, err)

	pending, err := env.reconcile.PollPending("VM-001")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	report := &commandModel.ResultReportRequest{CommandID: pending[0].CommandID, Status: "success"}
	require.NoError(t, env.reconcile.ReportResult("VM-001", report, ""))

	// 重复上报不改写终态，也不报错
	report.Status = "fail"
	require.NoError(t, env.reconcile.ReportResult("VM-001", report, ""))

	cmd, err := env.cmdRepo.GetByCommandID(pending[0].CommandID)
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusSuccess, cmd.Status)

	// 每次上报都有审计记录
	var auditCount int64
	require.NoError(t, env.db.Model(&commandModel.CommandResultRecord{}).Count(&auditCount).Error)
	assert.Equal(t, int64(2), auditCount)
}

func TestRetryBatch(t *testing.T) {
	env := newTestEnv(t)
	device := env.seedDevice(t, "VM-001", 1)

	resp, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-001"},
		CommandType: "restart",
	}, "", "")
	require.NoError(t, err)

	pending, err := env.reconcile.PollPending("VM-001")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, env.reconcile.ReportResult("VM-001", &commandModel.ResultReportRequest{
		CommandID: pending[0].CommandID,
		Status:    "fail",
	}, ""))

	retried, err := env.dispatch.RetryBatch(superadmin, resp.BatchID, &commandModel.RetryRequest{}, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, retried)

	cmd, err := env.cmdRepo.GetByCommandID(pending[0].CommandID)
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusPending, cmd.Status)
	assert.Equal(t, 1, cmd.Attempts)

	// 重试后没有可重试指令
	_, err = env.dispatch.RetryBatch(superadmin, resp.BatchID, &commandModel.RetryRequest{}, "", "")
	assert.ErrorIs(t, err, ErrNoRetryableCommands)

	_ = device
}

func TestRetryBatchIncludesTimeout(t *testing.T) {
	env := newTestEnv(t)
	device := env.seedDevice(t, "VM-001", 1)

	timedOut := &commandModel.Command{
		BaseModel:      basemodel.BaseModel{CreatedAt: time.Now().Add(-time.Hour)},
		CommandID:      "cmd-timeout",
		DeviceID:       device.ID,
		CommandType:    "restart",
		Status:         commandModel.StatusTimeout,
		TimeoutSeconds: 60,
		BatchID:        "batch-x",
	}
	require.NoError(t, env.cmdRepo.Create(timedOut))

	// 缺省不包含timeout
	_, err := env.dispatch.RetryBatch(superadmin, "batch-x", &commandModel.RetryRequest{}, "", "")
	assert.ErrorIs(t, err, ErrNoRetryableCommands)

	retried, err := env.dispatch.RetryBatch(superadmin, "batch-x", &commandModel.RetryRequest{RetryAll: true}, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, retried)
}

func TestGetBatchDetailNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.dispatch.GetBatchDetail(superadmin, "batch-ghost")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestSweeperExpiresTimedOut(t *testing.T) {
	env := newTestEnv(t)
	device := env.seedDevice(t, "VM-001", 1)

	stale := &commandModel.Command{
		BaseModel:      basemodel.BaseModel{CreatedAt: time.Now().Add(-10 * time.Minute)},
		CommandID:      "cmd-stale",
		DeviceID:       device.ID,
		CommandType:    "restart",
		Status:         commandModel.StatusSent,
		TimeoutSeconds: 60,
	}
	require.NoError(t, env.cmdRepo.Create(stale))

	n, err := env.sweeper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	cmd, err := env.cmdRepo.GetByCommandID("cmd-stale")
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusTimeout, cmd.Status)
}

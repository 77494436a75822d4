package command

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"vendmaster/internal/model/basemodel"
	commandModel "vendmaster/internal/model/command"
	deviceModel "vendmaster/internal/model/device"
)

// newTestRepo 内存SQLite上的仓库实例，批次查询需要联devices表
func newTestRepo(t *testing.T) (CommandRepository, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&deviceModel.Device{},
		&commandModel.Command{},
		&commandModel.CommandResultRecord{},
	))

	return NewCommandRepository(db), db
}

// seedDevice 插入测试设备
func seedDevice(t *testing.T, db *gorm.DB, deviceNo string, merchantID uint64) *deviceModel.Device {
	t.Helper()

	device := &deviceModel.Device{
		DeviceNo:   deviceNo,
		MerchantID: merchantID,
		APIKey:     "key-" + deviceNo,
		Status:     deviceModel.StatusOffline,
	}
	require.NoError(t, db.Create(device).Error)

	return device
}

// seedCommand 插入测试指令
func seedCommand(t *testing.T, repo CommandRepository, deviceID uint64, commandID, batchID string, status commandModel.CommandStatus, priority int) *commandModel.Command {
	t.Helper()

	cmd := &commandModel.Command{
		CommandID:      commandID,
		DeviceID:       deviceID,
		CommandType:    "restart",
		Status:         status,
		Channel:        commandModel.ChannelHTTPPoll,
		Priority:       priority,
		TimeoutSeconds: 300,
		BatchID:        batchID,
	}
	require.NoError(t, repo.Create(cmd))

	return cmd
}

func TestCommandIDUnique(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)

	seedCommand(t, repo, device.ID, "cmd-dup", "", commandModel.StatusPending, 0)

	err := repo.Create(&commandModel.Command{
		CommandID:      "cmd-dup",
		DeviceID:       device.ID,
		CommandType:    "restart",
		Status:         commandModel.StatusPending,
		TimeoutSeconds: 300,
	})
	assert.Error(t, err, "重复command_id应被唯一索引拒绝")
}

func TestMarkSentGuard(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)
	seedCommand(t, repo, device.ID, "cmd-1", "", commandModel.StatusPending, 0)

	applied, err := repo.MarkSent("cmd-1", commandModel.ChannelWebSocket)
	require.NoError(t, err)
	assert.True(t, applied)

	// 已是sent，二次投递不生效
	applied, err = repo.MarkSent("cmd-1", commandModel.ChannelWebSocket)
	require.NoError(t, err)
	assert.False(t, applied)

	cmd, err := repo.GetByCommandID("cmd-1")
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, commandModel.StatusSent, cmd.Status)
	assert.Equal(t, commandModel.ChannelWebSocket, cmd.Channel)
	assert.NotNil(t, cmd.SentAt)
}

func TestMarkSentBatchOnlyFlipsPending(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)
	seedCommand(t, repo, device.ID, "cmd-pending", "", commandModel.StatusPending, 0)
	seedCommand(t, repo, device.ID, "cmd-success", "", commandModel.StatusSuccess, 0)

	require.NoError(t, repo.MarkSentBatch([]string{"cmd-pending", "cmd-success", "cmd-unknown"}))

	cmd, err := repo.GetByCommandID("cmd-pending")
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusSent, cmd.Status)

	cmd, err = repo.GetByCommandID("cmd-success")
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusSuccess, cmd.Status, "终态指令不应被批量翻转")
}

func TestListDeliverableOrdering(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)
	other := seedDevice(t, db, "VM-002", 1)

	seedCommand(t, repo, device.ID, "cmd-low", "", commandModel.StatusPending, 0)
	seedCommand(t, repo, device.ID, "cmd-high", "", commandModel.StatusPending, 10)
	seedCommand(t, repo, device.ID, "cmd-sent", "", commandModel.StatusSent, 0)
	seedCommand(t, repo, device.ID, "cmd-done", "", commandModel.StatusSuccess, 99)
	seedCommand(t, repo, other.ID, "cmd-other", "", commandModel.StatusPending, 0)

	commands, err := repo.ListDeliverable(device.ID)
	require.NoError(t, err)
	require.Len(t, commands, 3, "pending和sent都应返回，终态与他机指令不返回")

	// 优先级高的先投递，同优先级按入库顺序
	assert.Equal(t, "cmd-high", commands[0].CommandID)
	assert.Equal(t, "cmd-low", commands[1].CommandID)
	assert.Equal(t, "cmd-sent", commands[2].CommandID)
}

func TestRecordResultGuard(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)
	seedCommand(t, repo, device.ID, "cmd-1", "", commandModel.StatusSent, 0)

	applied, err := repo.RecordResult("cmd-1", device.ID, commandModel.StatusSuccess,
		map[string]interface{}{"exit_code": float64(0)}, time.Now())
	require.NoError(t, err)
	assert.True(t, applied)

	cmd, err := repo.GetByCommandID("cmd-1")
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusSuccess, cmd.Status)
	assert.NotNil(t, cmd.ResultAt)
	assert.Equal(t, basemodel.JSONMap{"exit_code": float64(0)}, cmd.ResultPayload)

	// 终态指令的重复上报不生效
	applied, err = repo.RecordResult("cmd-1", device.ID, commandModel.StatusFail, nil, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)

	cmd, err = repo.GetByCommandID("cmd-1")
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusSuccess, cmd.Status)

	// 未知指令ID不生效
	applied, err = repo.RecordResult("cmd-unknown", device.ID, commandModel.StatusSuccess, nil, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestResetForRetry(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)
	seedCommand(t, repo, device.ID, "cmd-fail", "", commandModel.StatusFail, 0)
	seedCommand(t, repo, device.ID, "cmd-done", "", commandModel.StatusSuccess, 0)

	applied, err := repo.ResetForRetry("cmd-fail")
	require.NoError(t, err)
	assert.True(t, applied)

	cmd, err := repo.GetByCommandID("cmd-fail")
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusPending, cmd.Status)
	assert.Equal(t, 1, cmd.Attempts)
	assert.Nil(t, cmd.SentAt)
	assert.Nil(t, cmd.ResultAt)

	// success指令不可重试
	applied, err = repo.ResetForRetry("cmd-done")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestExpireTimedOut(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)

	// 最后变更时间回拨到超时线之外
	expired := &commandModel.Command{
		BaseModel: basemodel.BaseModel{
			CreatedAt: time.Now().Add(-10 * time.Minute),
			UpdatedAt: time.Now().Add(-10 * time.Minute),
		},
		CommandID:      "cmd-expired",
		DeviceID:       device.ID,
		CommandType:    "restart",
		Status:         commandModel.StatusSent,
		TimeoutSeconds: 60,
	}
	require.NoError(t, repo.Create(expired))

	seedCommand(t, repo, device.ID, "cmd-fresh", "", commandModel.StatusPending, 0)
	seedCommand(t, repo, device.ID, "cmd-done", "", commandModel.StatusSuccess, 0)

	n, err := repo.ExpireTimedOut(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	cmd, err := repo.GetByCommandID("cmd-expired")
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusTimeout, cmd.Status)

	cmd, err = repo.GetByCommandID("cmd-fresh")
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusPending, cmd.Status, "未超时指令不应被清扫")
}

func TestExpireTimedOutSparesRetriedCommand(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)

	// 早已超过created_at+timeout的timeout指令
	stale := &commandModel.Command{
		BaseModel: basemodel.BaseModel{
			CreatedAt: time.Now().Add(-time.Hour),
			UpdatedAt: time.Now().Add(-time.Hour),
		},
		CommandID:      "cmd-stale",
		DeviceID:       device.ID,
		CommandType:    "restart",
		Status:         commandModel.StatusTimeout,
		TimeoutSeconds: 60,
	}
	require.NoError(t, repo.Create(stale))

	// 重试重置刷新updated_at，超时窗口从重置时刻重新起算
	applied, err := repo.ResetForRetry("cmd-stale")
	require.NoError(t, err)
	require.True(t, applied)

	n, err := repo.ExpireTimedOut(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	cmd, err := repo.GetByCommandID("cmd-stale")
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusPending, cmd.Status, "重试后的指令应获得完整的新超时窗口")
}

func TestListPendingForScan(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)

	old := &commandModel.Command{
		BaseModel: basemodel.BaseModel{
			CreatedAt: time.Now().Add(-time.Minute),
			UpdatedAt: time.Now().Add(-time.Minute),
		},
		CommandID:      "cmd-old",
		DeviceID:       device.ID,
		CommandType:    "restart",
		Status:         commandModel.StatusPending,
		TimeoutSeconds: 300,
	}
	require.NoError(t, repo.Create(old))
	seedCommand(t, repo, device.ID, "cmd-sent", "", commandModel.StatusSent, 0)

	commands, err := repo.ListPendingForScan(time.Now().Add(-2*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "cmd-old", commands[0].CommandID)
}

func TestListBatchSummaries(t *testing.T) {
	repo, db := newTestRepo(t)
	merchantA := seedDevice(t, db, "VM-A1", 1)
	merchantB := seedDevice(t, db, "VM-B1", 2)

	seedCommand(t, repo, merchantA.ID, "cmd-1", "batch-20260301-aaaaaa", commandModel.StatusSuccess, 0)
	seedCommand(t, repo, merchantA.ID, "cmd-2", "batch-20260301-aaaaaa", commandModel.StatusFail, 0)
	seedCommand(t, repo, merchantA.ID, "cmd-3", "batch-20260301-aaaaaa", commandModel.StatusPending, 0)
	seedCommand(t, repo, merchantB.ID, "cmd-4", "batch-20260301-bbbbbb", commandModel.StatusSent, 0)
	// 单发指令无批次，不进入摘要
	seedCommand(t, repo, merchantA.ID, "cmd-5", "", commandModel.StatusPending, 0)

	summaries, total, err := repo.ListBatchSummaries(1, 20, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, summaries, 2)

	byBatch := make(map[string]*commandModel.BatchSummary, len(summaries))
	for _, s := range summaries {
		byBatch[s.BatchID] = s
	}

	a := byBatch["batch-20260301-aaaaaa"]
	require.NotNil(t, a)
	assert.Equal(t, int64(3), a.Total)
	assert.Equal(t, int64(1), a.Success)
	assert.Equal(t, int64(1), a.Fail)
	assert.Equal(t, int64(1), a.Pending)

	// 商户数据范围过滤
	merchantID := uint64(2)
	summaries, total, err = repo.ListBatchSummaries(1, 20, &merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, summaries, 1)
	assert.Equal(t, "batch-20260301-bbbbbb", summaries[0].BatchID)
}

func TestListByBatch(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)
	seedCommand(t, repo, device.ID, "cmd-1", "batch-x", commandModel.StatusPending, 0)
	seedCommand(t, repo, device.ID, "cmd-2", "batch-x", commandModel.StatusSent, 0)

	rows, err := repo.ListByBatch("batch-x", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "VM-001", rows[0].DeviceNo)

	// 商户范围不匹配时批次不可见
	otherMerchant := uint64(99)
	rows, err = repo.ListByBatch("batch-x", &otherMerchant)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListRetryable(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)
	seedCommand(t, repo, device.ID, "cmd-fail", "batch-x", commandModel.StatusFail, 0)
	seedCommand(t, repo, device.ID, "cmd-timeout", "batch-x", commandModel.StatusTimeout, 0)
	seedCommand(t, repo, device.ID, "cmd-done", "batch-x", commandModel.StatusSuccess, 0)
	seedCommand(t, repo, device.ID, "cmd-sent", "batch-x", commandModel.StatusSent, 0)

	// 缺省只取fail
	commands, err := repo.ListRetryable("batch-x", nil,
		[]commandModel.CommandStatus{commandModel.StatusFail}, nil)
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "cmd-fail", commands[0].CommandID)

	// retry_all取fail和timeout
	commands, err = repo.ListRetryable("batch-x", nil,
		[]commandModel.CommandStatus{commandModel.StatusFail, commandModel.StatusTimeout}, nil)
	require.NoError(t, err)
	assert.Len(t, commands, 2)

	// 指定command_ids时仍限定可重试状态
	commands, err = repo.ListRetryable("batch-x", []string{"cmd-timeout", "cmd-done", "cmd-sent"},
		[]commandModel.CommandStatus{commandModel.StatusFail}, nil)
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "cmd-timeout", commands[0].CommandID)
}

func TestCountByStatusSince(t *testing.T) {
	repo, db := newTestRepo(t)
	device := seedDevice(t, db, "VM-001", 1)
	seedCommand(t, repo, device.ID, "cmd-1", "", commandModel.StatusSuccess, 0)
	seedCommand(t, repo, device.ID, "cmd-2", "", commandModel.StatusSuccess, 0)
	seedCommand(t, repo, device.ID, "cmd-3", "", commandModel.StatusFail, 0)

	counts, err := repo.CountByStatusSince(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["success"])
	assert.Equal(t, int64(1), counts["fail"])

	counts, err = repo.CountByStatusSince(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, counts)
}

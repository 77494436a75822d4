package command

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commandModel "vendmaster/internal/model/command"
)

// fakePusher 可控的Pusher实现
type fakePusher struct {
	mu     sync.Mutex
	online map[string]bool
	pushed []string
}

func (p *fakePusher) PushCommand(deviceNo string, cmd *commandModel.Command) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[deviceNo] {
		return false
	}
	p.pushed = append(p.pushed, cmd.CommandID)
	return true
}

func TestQueueDeliverOnlineDevice(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	pusher := &fakePusher{online: map[string]bool{"VM-001": true}}
	env.queue.SetPusher(pusher)

	resp, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-001"},
		CommandType: "restart",
	}, "", "")
	require.NoError(t, err)

	details, err := env.dispatch.GetBatchDetail(superadmin, resp.BatchID)
	require.NoError(t, err)
	require.Len(t, details, 1)

	// 直接触发一次投递（worker未启动）
	env.queue.deliverByID(details[0].CommandID)

	assert.Equal(t, []string{details[0].CommandID}, pusher.pushed)

	cmd, err := env.cmdRepo.GetByCommandID(details[0].CommandID)
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusSent, cmd.Status)
	assert.Equal(t, commandModel.ChannelWebSocket, cmd.Channel)
}

func TestQueueDeliverOfflineDeviceStaysPending(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	pusher := &fakePusher{online: map[string]bool{}}
	env.queue.SetPusher(pusher)

	resp, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-001"},
		CommandType: "restart",
	}, "", "")
	require.NoError(t, err)

	details, err := env.dispatch.GetBatchDetail(superadmin, resp.BatchID)
	require.NoError(t, err)
	require.Len(t, details, 1)

	env.queue.deliverByID(details[0].CommandID)

	// 设备不在线，指令保持pending等待HTTP轮询
	cmd, err := env.cmdRepo.GetByCommandID(details[0].CommandID)
	require.NoError(t, err)
	assert.Equal(t, commandModel.StatusPending, cmd.Status)
	assert.Empty(t, pusher.pushed)
}

func TestQueueScanOutboxSkipsFreshCommands(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "VM-001", 1)

	pusher := &fakePusher{online: map[string]bool{"VM-001": true}}
	env.queue.SetPusher(pusher)

	_, err := env.dispatch.Dispatch(superadmin, &commandModel.DispatchRequest{
		DeviceIDs:   []string{"VM-001"},
		CommandType: "restart",
	}, "", "")
	require.NoError(t, err)

	// 刚入库的指令在cutoff保护期内，兜底扫描不抢投
	env.queue.scanOutbox()
	assert.Empty(t, pusher.pushed)
}

func TestQueueSubmitNonBlocking(t *testing.T) {
	env := newTestEnv(t)

	small := NewDispatchQueue(env.cmdRepo, env.devRepo, 1, 0, 0)

	// 通道满之后Submit直接丢弃唤醒，不阻塞调用方
	small.Submit("cmd-1")
	small.Submit("cmd-2")
	small.Submit("cmd-3")
}

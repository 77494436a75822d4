/**
 * 设备仓库层:设备在线状态数据访问
 * @author: sun977
 * @date: 2026.03.24
 * @description: 设备在线状态数据交互层(Redis存储,适合多实例部署)
 * @func: 单纯数据访问,不应该包含业务逻辑
 * @note: 每台设备一个带TTL的key作为在线判定依据，另维护一个集合用于枚举；
 *        集合成员可能滞后于key过期，枚举时需要二次校验key是否存活
 */
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// presenceKeyPrefix 设备在线key前缀[KEY:presence:device:{deviceNo}]
	presenceKeyPrefix = "presence:device:"
	// presenceSetKey 在线设备枚举集合
	presenceSetKey = "presence:online_devices"
)

// PresenceRepository Redis设备在线状态存储库
type PresenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository 创建设备在线状态存储库实例
func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{
		client: client,
	}
}

// getPresenceKey 生成设备在线key
func (r *PresenceRepository) getPresenceKey(deviceNo string) string {
	return presenceKeyPrefix + deviceNo
}

// SetOnline 标记设备在线并刷新TTL
// 心跳到达时重复调用即续期
func (r *PresenceRepository) SetOnline(ctx context.Context, deviceNo string, ttl time.Duration) error {
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.getPresenceKey(deviceNo), time.Now().Unix(), ttl)
	pipe.SAdd(ctx, presenceSetKey, deviceNo)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set device online: %w", err)
	}

	return nil
}

// SetOffline 标记设备离线
func (r *PresenceRepository) SetOffline(ctx context.Context, deviceNo string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.getPresenceKey(deviceNo))
	pipe.SRem(ctx, presenceSetKey, deviceNo)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set device offline: %w", err)
	}

	return nil
}

// IsOnline 判断设备是否在线
func (r *PresenceRepository) IsOnline(ctx context.Context, deviceNo string) (bool, error) {
	n, err := r.client.Exists(ctx, r.getPresenceKey(deviceNo)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check device presence: %w", err)
	}

	return n > 0, nil
}

// ListOnline 枚举当前在线设备
// 集合成员逐个校验key是否存活，过期的顺手从集合剔除
func (r *PresenceRepository) ListOnline(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, presenceSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online devices: %w", err)
	}

	online := make([]string, 0, len(members))
	var stale []interface{}
	for _, deviceNo := range members {
		n, err := r.client.Exists(ctx, r.getPresenceKey(deviceNo)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check device presence: %w", err)
		}
		if n > 0 {
			online = append(online, deviceNo)
		} else {
			stale = append(stale, deviceNo)
		}
	}

	if len(stale) > 0 {
		// 清理失败不影响本次枚举结果
		_ = r.client.SRem(ctx, presenceSetKey, stale...).Err()
	}

	return online, nil
}

// CountOnline 统计当前在线设备数
func (r *PresenceRepository) CountOnline(ctx context.Context) (int64, error) {
	online, err := r.ListOnline(ctx)
	if err != nil {
		return 0, err
	}

	return int64(len(online)), nil
}

package order

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	deviceModel "vendmaster/internal/model/device"
	orderModel "vendmaster/internal/model/order"
	deviceRepo "vendmaster/internal/repo/mysql/device"
	orderRepo "vendmaster/internal/repo/mysql/order"
)

func newTestService(t *testing.T) (OrderService, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&deviceModel.Device{},
		&orderModel.Order{},
		&orderModel.Product{},
	))

	return NewOrderService(orderRepo.NewOrderRepository(db), deviceRepo.NewDeviceRepository(db)), db
}

func seedDevice(t *testing.T, db *gorm.DB, deviceNo string, merchantID uint64) *deviceModel.Device {
	t.Helper()

	device := &deviceModel.Device{
		DeviceNo:   deviceNo,
		MerchantID: merchantID,
		APIKey:     "key-" + deviceNo,
		Status:     deviceModel.StatusOnline,
	}
	require.NoError(t, db.Create(device).Error)

	return device
}

func TestCreateFromDeviceIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	seedDevice(t, db, "VM-001", 1)

	req := &orderModel.CreateOrderRequest{
		OrderID: "ord-20260301-0001",
		Items: []orderModel.OrderItem{
			{ProductID: 1, Name: "拿铁", Quantity: 1, UnitPrice: 15},
		},
		TotalPrice:    15,
		PaymentMethod: "wechat",
		PaymentStatus: orderModel.PayStatusPaid,
	}

	resp, err := svc.CreateFromDevice("VM-001", req, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, "ord-20260301-0001", resp.OrderNo)

	// 同order_no重复上报幂等，不产生第二条记录
	resp, err = svc.CreateFromDevice("VM-001", req, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.True(t, resp.Duplicate)

	var count int64
	require.NoError(t, db.Model(&orderModel.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateFromDeviceUnknownDevice(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateFromDevice("VM-GHOST", &orderModel.CreateOrderRequest{
		OrderID: "ord-1",
	}, "")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestCreateFromDeviceDenormalizesFirstItem(t *testing.T) {
	svc, db := newTestService(t)
	device := seedDevice(t, db, "VM-001", 7)

	_, err := svc.CreateFromDevice("VM-001", &orderModel.CreateOrderRequest{
		OrderID: "ord-2",
		Items: []orderModel.OrderItem{
			{Name: "美式", Quantity: 2, UnitPrice: 10},
			{Name: "糖包", Quantity: 1, UnitPrice: 1},
		},
		TotalPrice:    21,
		PaymentMethod: "alipay",
	}, "")
	require.NoError(t, err)

	var order orderModel.Order
	require.NoError(t, db.Where("order_no = ?", "ord-2").First(&order).Error)
	assert.Equal(t, device.ID, order.DeviceID)
	assert.Equal(t, uint64(7), order.MerchantID, "订单继承设备所属商户")
	assert.Equal(t, "美式", order.ProductName)
	assert.Equal(t, 2, order.Quantity)
	assert.Equal(t, float64(10), order.UnitPrice)
	assert.Equal(t, float64(21), order.TotalAmount)
	assert.Equal(t, orderModel.PayStatusUnpaid, order.PayStatus, "缺省支付状态为unpaid")

	// 完整上报内容保留在raw_payload里
	items, ok := order.RawPayload["items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestGetListFilters(t *testing.T) {
	svc, db := newTestService(t)
	seedDevice(t, db, "VM-001", 1)
	seedDevice(t, db, "VM-002", 2)

	for i, tc := range []struct {
		deviceNo  string
		payStatus string
	}{
		{"VM-001", orderModel.PayStatusPaid},
		{"VM-001", orderModel.PayStatusUnpaid},
		{"VM-002", orderModel.PayStatusPaid},
	} {
		_, err := svc.CreateFromDevice(tc.deviceNo, &orderModel.CreateOrderRequest{
			OrderID:       "ord-" + string(rune('a'+i)),
			TotalPrice:    10,
			PaymentStatus: tc.payStatus,
		}, "")
		require.NoError(t, err)
	}

	orders, total, err := svc.GetList(nil, 1, 10, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, orders, 3)

	orders, total, err = svc.GetList(nil, 1, 10, "VM-001", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	orders, total, err = svc.GetList(nil, 1, 10, "VM-001", orderModel.PayStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	// 商户数据范围过滤
	merchantID := uint64(2)
	orders, total, err = svc.GetList(&merchantID, 1, 10, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, orders, 1)
	assert.Equal(t, uint64(2), orders[0].MerchantID)

	// 未知设备过滤返回空集而不是错误
	orders, total, err = svc.GetList(nil, 1, 10, "VM-GHOST", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, orders)
}

func TestListProducts(t *testing.T) {
	svc, db := newTestService(t)

	require.NoError(t, db.Create(&orderModel.Product{Name: "拿铁", Price: 15, IsActive: true}).Error)
	require.NoError(t, db.Create(&orderModel.Product{Name: "下架品", Price: 10, IsActive: true}).Error)
	// is_active带默认值，零值建档会被默认值顶掉，这里显式下架
	require.NoError(t, db.Model(&orderModel.Product{}).
		Where("name = ?", "下架品").
		Update("is_active", false).Error)

	products, err := svc.ListProducts(true)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "拿铁", products[0].Name)

	products, err = svc.ListProducts(false)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

/**
 * 服务层:订单服务
 * @author: Sun977
 * @date: 2026.03.26
 * @description: 设备订单幂等创建与管理端查询
 * @func:
 * 	1.CreateFromDevice 设备上报订单，order_no幂等
 * 	2.GetList 管理端订单分页查询
 * 	3.ListProducts 商品目录
 */
package order

import (
	"errors"
	"fmt"
	"strings"

	"vendmaster/internal/model/basemodel"
	orderModel "vendmaster/internal/model/order"
	"vendmaster/internal/pkg/logger"
	deviceRepo "vendmaster/internal/repo/mysql/device"
	orderRepo "vendmaster/internal/repo/mysql/order"
)

// ErrDeviceNotFound 设备不存在
var ErrDeviceNotFound = errors.New("device not found")

// OrderService 订单服务接口定义
type OrderService interface {
	CreateFromDevice(deviceNo string, req *orderModel.CreateOrderRequest, clientIP string) (*orderModel.CreateOrderResponse, error)
	GetList(merchantID *uint64, page, pageSize int, deviceNo, payStatus string) ([]*orderModel.Order, int64, error)
	ListProducts(onlyActive bool) ([]*orderModel.Product, error)
}

// orderService 订单服务实现
type orderService struct {
	orderRepo  orderRepo.OrderRepository
	deviceRepo deviceRepo.DeviceRepository
}

// NewOrderService 创建订单服务实例
func NewOrderService(ordRepo orderRepo.OrderRepository, devRepo deviceRepo.DeviceRepository) OrderService {
	return &orderService{
		orderRepo:  ordRepo,
		deviceRepo: devRepo,
	}
}

// CreateFromDevice 处理设备上报的订单
// 以order_no做幂等：重复上报返回duplicate=true，不产生第二条记录
func (s *orderService) CreateFromDevice(deviceNo string, req *orderModel.CreateOrderRequest, clientIP string) (*orderModel.CreateOrderResponse, error) {
	device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
	if err != nil {
		return nil, fmt.Errorf("查询设备失败: %v", err)
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}

	existing, err := s.orderRepo.GetByOrderNo(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %v", err)
	}
	if existing != nil {
		return &orderModel.CreateOrderResponse{
			OK:        true,
			OrderNo:   existing.OrderNo,
			Duplicate: true,
		}, nil
	}

	order := s.buildOrder(device.ID, device.MerchantID, req)
	if err := s.orderRepo.Create(order); err != nil {
		// 并发重复上报撞唯一索引，按幂等处理
		if isDuplicateKeyError(err) {
			return &orderModel.CreateOrderResponse{
				OK:        true,
				OrderNo:   req.OrderID,
				Duplicate: true,
			}, nil
		}
		return nil, fmt.Errorf("创建订单失败: %v", err)
	}

	logger.LogBusinessOperation("order_create", 0, deviceNo, clientIP, "", "success",
		fmt.Sprintf("设备 %s 上报订单 %s，金额 %.2f", deviceNo, order.OrderNo, order.TotalAmount),
		map[string]interface{}{
			"operation":    "create_order",
			"option":       "orderService.CreateFromDevice",
			"func_name":    "service.order.CreateFromDevice",
			"order_no":     order.OrderNo,
			"device_no":    deviceNo,
			"total_amount": order.TotalAmount,
		})

	return &orderModel.CreateOrderResponse{
		OK:      true,
		OrderNo: order.OrderNo,
	}, nil
}

// GetList 管理端分页查询订单
func (s *orderService) GetList(merchantID *uint64, page, pageSize int, deviceNo, payStatus string) ([]*orderModel.Order, int64, error) {
	var deviceID *uint64
	if deviceNo != "" {
		device, err := s.deviceRepo.GetByDeviceNo(deviceNo)
		if err != nil {
			return nil, 0, fmt.Errorf("查询设备失败: %v", err)
		}
		if device == nil {
			return []*orderModel.Order{}, 0, nil
		}
		deviceID = &device.ID
	}

	orders, total, err := s.orderRepo.GetList(page, pageSize, merchantID, deviceID, payStatus)
	if err != nil {
		return nil, 0, fmt.Errorf("查询订单列表失败: %v", err)
	}

	return orders, total, nil
}

// ListProducts 查询商品目录
func (s *orderService) ListProducts(onlyActive bool) ([]*orderModel.Product, error) {
	products, err := s.orderRepo.ListProducts(onlyActive)
	if err != nil {
		return nil, fmt.Errorf("查询商品目录失败: %v", err)
	}

	return products, nil
}

// buildOrder 上报内容转订单实体，首个商品项冗余到订单主表便于列表展示
func (s *orderService) buildOrder(deviceID, merchantID uint64, req *orderModel.CreateOrderRequest) *orderModel.Order {
	order := &orderModel.Order{
		OrderNo:     req.OrderID,
		DeviceID:    deviceID,
		MerchantID:  merchantID,
		Quantity:    1,
		TotalAmount: req.TotalPrice,
		PayMethod:   req.PaymentMethod,
		PayStatus:   req.PaymentStatus,
	}
	if order.PayStatus == "" {
		order.PayStatus = orderModel.PayStatusUnpaid
	}

	if len(req.Items) > 0 {
		first := req.Items[0]
		order.ProductName = first.Name
		order.Quantity = first.Quantity
		order.UnitPrice = first.UnitPrice
	}

	raw := map[string]interface{}{
		"order_id":       req.OrderID,
		"total_price":    req.TotalPrice,
		"payment_method": req.PaymentMethod,
		"payment_status": req.PaymentStatus,
	}
	if len(req.Items) > 0 {
		items := make([]interface{}, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, map[string]interface{}{
				"product_id": item.ProductID,
				"name":       item.Name,
				"quantity":   item.Quantity,
				"unit_price": item.UnitPrice,
			})
		}
		raw["items"] = items
	}
	order.RawPayload = basemodel.JSONMap(raw)

	return order
}

// isDuplicateKeyError 判断是否唯一索引冲突
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

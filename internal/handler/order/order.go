/**
 * @author: sun977
 * @date: 2026.03.27
 * @description: 订单管理接口(管理端)
 * @func:
 * 	1.订单列表
 * 	2.商品目录
 */
package order

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vendmaster/internal/model"
	"vendmaster/internal/pkg/logger"
	"vendmaster/internal/pkg/utils"
	orderService "vendmaster/internal/service/order"
)

// OrderHandler 订单管理处理器
type OrderHandler struct {
	orderService orderService.OrderService // 订单服务
}

// NewOrderHandler 创建订单管理处理器
func NewOrderHandler(ordSvc orderService.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: ordSvc,
	}
}

// GetOrders 订单列表【完成】
// GET /api/manage/orders?page=1&page_size=20&device_id=&pay_status=
func (h *OrderHandler) GetOrders(c *gin.Context) {
	claims, ok := utils.GetClaimsFromGinContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.APIResponse{
			Code:    http.StatusUnauthorized,
			Status:  "error",
			Message: "unauthorized",
		})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	deviceNo := c.Query("device_id")
	payStatus := c.Query("pay_status")

	orders, total, err := h.orderService.GetList(claims.MerchantScope(), page, pageSize, deviceNo, payStatus)
	if err != nil {
		logger.LogError(err, utils.GetRequestID(c), utils.GetCurrentUserIDFromGinContext(c), utils.GetClientIP(c), "get_orders", "GET", map[string]interface{}{
			"operation": "get_orders",
			"func_name": "handler.order.GetOrders",
		})
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:    http.StatusInternalServerError,
			Status:  "error",
			Message: "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{
		Code:    http.StatusOK,
		Status:  "success",
		Message: "get orders successfully",
		Data:    model.NewPagination(total, page, pageSize, orders),
	})
}

// GetProducts 商品目录【完成】
// GET /api/manage/products?only_active=true
func (h *OrderHandler) GetProducts(c *gin.Context) {
	onlyActive := c.DefaultQuery("only_active", "true") == "true"

	products, err := h.orderService.ListProducts(onlyActive)
	if err != nil {
		logger.LogError(err, utils.GetRequestID(c), utils.GetCurrentUserIDFromGinContext(c), utils.GetClientIP(c), "get_products", "GET", map[string]interface{}{
			"operation": "get_products",
			"func_name": "handler.order.GetProducts",
		})
		c.JSON(http.StatusInternalServerError, model.APIResponse{
			Code:    http.StatusInternalServerError,
			Status:  "error",
			Message: "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, model.APIResponse{
		Code:    http.StatusOK,
		Status:  "success",
		Message: "get products successfully",
		Data:    products,
	})
}

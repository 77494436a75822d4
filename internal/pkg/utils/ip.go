package utils

import (
	"net"
	"strings"
)

// NormalizeIP 标准化客户端IP：
// 设备固件上报与网关转发的来源格式不统一，这里统一收敛：
// - X-Forwarded-For 列表取第一个
// - host:port / [ipv6]:port 去掉端口
// - IPv4-mapped IPv6 (::ffff:192.0.2.1) 转成纯IPv4
// - 其余原样返回（包括真IPv6与无法解析的串）
func NormalizeIP(input string) string {
	if input == "" {
		return ""
	}

	ip := strings.TrimSpace(strings.Split(input, ",")[0])

	if h, _, err := net.SplitHostPort(ip); err == nil {
		ip = h
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}

	if v4 := parsed.To4(); v4 != nil {
		return v4.String()
	}

	return parsed.String()
}

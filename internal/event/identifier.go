package event

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"

	"github.com/denisbrodbeck/machineid"
)

// distinctId 用于存储唯一标识符
var distinctId string

const (
	// hashKey 用于生成哈希值的密钥
	hashKey = "gemchat"
	// fallbackId 当无法获取设备ID时的回退标识符
	fallbackId = "unknown"
)

// getDistinctId 获取设备的唯一标识符
// 首先尝试使用机器ID，如果失败则尝试获取MAC地址并哈希，最后使用回退值
func getDistinctId() string {
	if id, err := machineid.ProtectedID(hashKey); err == nil {
		return id
	}
	if macAddr, err := getMacAddr(); err == nil {
		return hashString(macAddr)
	}
	return fallbackId
}

// getMacAddr 获取本机活动网络接口的MAC地址
// 返回第一个非回环且已启用的网络接口的MAC地址
func getMacAddr() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 && len(iface.HardwareAddr) > 0 {
			if addrs, err := iface.Addrs(); err == nil && len(addrs) > 0 {
				return iface.HardwareAddr.String(), nil
			}
		}
	}
	return "", fmt.Errorf("未找到具有MAC地址的活动网络接口")
}

// hashString 使用HMAC-SHA256对字符串进行哈希
func hashString(str string) string {
	hash := hmac.New(sha256.New, []byte(str))
	hash.Write([]byte(hashKey))
	return hex.EncodeToString(hash.Sum(nil))
}

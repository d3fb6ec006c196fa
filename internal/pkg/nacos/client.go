// internal/pkg/nacos/client.go
package nacos

import (
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultGroup = "DEFAULT_GROUP" // Nacos 默认分组

// Client 封装了 Nacos 命名客户端
type Client struct {
	namingClient naming_client.INamingClient
	groupName    string
}

// ParseServerConfigs 解析 "ip1:port1,ip2:port2" 格式的地址
func ParseServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		parts := strings.Split(addr, ":")
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid port in nacos address: %s", parts[1])
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(parts[0], port))
	}
	if len(serverConfigs) == 0 {
		return nil, errors.New("nacos address list is empty")
	}
	return serverConfigs, nil
}

// NewClientConfig 创建客户端配置，namespaceId 为空时使用 public 命名空间
func NewClientConfig(namespaceId string) constant.ClientConfig {
	if namespaceId == "" {
		zlog.Warn().Msg("NACOS_NAMESPACE is not set, using default public namespace")
	}
	return *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(namespaceId),
	)
}

// NewNacosClientWithConfigs 用已经解析好的配置创建命名客户端
func NewNacosClientWithConfigs(serverConfigs []constant.ServerConfig, clientConfig *constant.ClientConfig, groupName string) (*Client, error) {
	if groupName == "" {
		groupName = defaultGroup
	}
	namingClient, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create nacos naming client")
	}
	zlog.Info().Str("group", groupName).Msg("connected to nacos")
	return &Client{namingClient: namingClient, groupName: groupName}, nil
}

// RegisterServiceInstance 注册一个临时实例，心跳断开后会自动摘除
func (c *Client) RegisterServiceInstance(serviceName, ip string, port int) error {
	success, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return errors.Wrap(err, "failed to register service with nacos")
	}
	if !success {
		return errors.Errorf("nacos registration was not successful for service: %s", serviceName)
	}
	zlog.Info().Str("service", serviceName).Str("ip", ip).Int("port", port).Msg("service registered to nacos")
	return nil
}

// DeregisterServiceInstance 从 Nacos 注销一个服务实例
func (c *Client) DeregisterServiceInstance(serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return errors.Wrap(err, "failed to deregister service with nacos")
	}
	return nil
}

// ConfigClient 封装了 Nacos 配置中心客户端
type ConfigClient struct {
	client config_client.IConfigClient
	group  string
}

// NewConfigClient 创建配置中心客户端
func NewConfigClient(serverConfigs []constant.ServerConfig, clientConfig *constant.ClientConfig, groupName string) (*ConfigClient, error) {
	if groupName == "" {
		groupName = defaultGroup
	}
	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create nacos config client")
	}
	return &ConfigClient{client: client, group: groupName}, nil
}

// Get 读取 dataId 的当前内容
func (c *ConfigClient) Get(dataId string) (string, error) {
	content, err := c.client.GetConfig(vo.ConfigParam{DataId: dataId, Group: c.group})
	if err != nil {
		return "", errors.Wrapf(err, "failed to get nacos config %s", dataId)
	}
	return content, nil
}

// Watch 在 dataId 变化时回调 onChange
func (c *ConfigClient) Watch(dataId string, onChange func(content string)) error {
	err := c.client.ListenConfig(vo.ConfigParam{
		DataId: dataId,
		Group:  c.group,
		OnChange: func(namespace, group, dataId, data string) {
			zlog.Info().Str("data_id", dataId).Msg("nacos config changed")
			onChange(data)
		},
	})
	return errors.Wrapf(err, "failed to listen nacos config %s", dataId)
}

// Close 关闭配置客户端
func (c *ConfigClient) Close() {
	c.client.CloseClient()
}

// internal/pkg/zookeeper/conn.go
package zookeeper

import (
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/rs/zerolog/log"
)

// Conn 封装一个 ZooKeeper 会话。
type Conn struct {
	*zk.Conn
}

// Connect 建立 ZooKeeper 会话。
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, err
	}
	log.Info().Strs("servers", servers).Msg("connected to zookeeper")
	return &Conn{Conn: conn}, nil
}

// Close 关闭会话，持有的临时节点（包括锁节点）随之释放。
func (c *Conn) Close() {
	c.Conn.Close()
}

package credential

import (
	"os"

	"github.com/joho/godotenv"
)

// SecretSource 按名称查找凭证
type SecretSource interface {
	Lookup(name string) (string, bool)
}

// EnvSource 读取进程环境变量
type EnvSource struct{}

// Lookup 实现 SecretSource
func (EnvSource) Lookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// MapSource 固定的键值来源，用于测试和静态配置
type MapSource map[string]string

// Lookup 实现 SecretSource
func (m MapSource) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// NewDotenvSource 读取 .env 文件但不写入进程环境
func NewDotenvSource(files ...string) (MapSource, error) {
	if len(files) == 0 {
		return MapSource{}, nil
	}
	values, err := godotenv.Read(files...)
	if err != nil {
		return nil, err
	}
	return MapSource(values), nil
}

// ChainSource 依次查询，第一个非空值生效
type ChainSource []SecretSource

// Lookup 实现 SecretSource
func (c ChainSource) Lookup(name string) (string, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

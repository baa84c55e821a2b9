package svc

import "errors"

// ErrNoFeed 配置的交易所没有注册行情源
var ErrNoFeed = errors.New("no price feed registered for exchange")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")

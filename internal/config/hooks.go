package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// BridgeKind selects the device bridge implementation.
type BridgeKind string

const (
	BridgeADB   BridgeKind = "adb"
	BridgeSFTP  BridgeKind = "sftp"
	BridgeLocal BridgeKind = "local"
)

// StringToBridgeKind is a DecodeHookFunc that normalises bridge names.
func StringToBridgeKind() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(BridgeKind("")) {
			return data, nil
		}
		s := strings.ToLower(strings.TrimSpace(reflect.ValueOf(data).String()))
		switch BridgeKind(s) {
		case BridgeADB, BridgeSFTP, BridgeLocal:
			return BridgeKind(s), nil
		}
		return nil, fmt.Errorf("unknown bridge %q", s)
	}
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		StringToBridgeKind(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

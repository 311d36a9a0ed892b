package proto

import "strings"

// Service names.
const (
	CryptoService        = "proto.CryptoService"
	TokenService         = "proto.TokenService"
	MirrorNetworkService = "mirror.api.NetworkService"
	MirrorTopicService   = "mirror.api.ConsensusService"
)

// Full method paths.
const (
	MethodCryptoTransfer        = "/" + CryptoService + "/cryptoTransfer"
	MethodGetAccountBalance     = "/" + CryptoService + "/cryptoGetBalance"
	MethodGetAccountInfo        = "/" + CryptoService + "/getAccountInfo"
	MethodGetTransactionReceipt = "/" + CryptoService + "/getTransactionReceipts"
	MethodGetNftInfo            = "/" + TokenService + "/getTokenNftInfo"
	MethodGetNodes              = "/" + MirrorNetworkService + "/getNodes"
	MethodSubscribeTopic        = "/" + MirrorTopicService + "/subscribeTopic"
)

// SplitMethod splits a full method path into its service and method names.
func SplitMethod(fullMethod string) (service string, method string) {
	trimmed := strings.TrimPrefix(fullMethod, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return "", trimmed
	}
	return trimmed[:i], trimmed[i+1:]
}

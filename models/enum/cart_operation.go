package enum

// CartOperation 表示同步到遠端購物車的操作
type CartOperation string

const (
	CartOperationAdd    CartOperation = "add"
	CartOperationUpdate CartOperation = "update"
	CartOperationRemove CartOperation = "remove"
	CartOperationClear  CartOperation = "clear"
	CartOperationScan   CartOperation = "scan"
)

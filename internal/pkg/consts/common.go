package consts

const (
	MsgTypeText  = 1
	MsgTypeImage = 2
	MsgTypeVideo = 3
	MsgTypeFile  = 4
	MsgTypeTodo  = 5
)

const (
	ConvTypeDirect = 1
	ConvTypeGroup  = 2
)

package consts

const (
	// IMOnlineKey 在线租约: im:online:{userId} -> instanceId
	IMOnlineKey = "im:online:"
	// IMInstanceKey 实例反向索引: im:instance:{instanceId} -> Set<userId>
	IMInstanceKey = "im:instance:"
	// IMOfflineKey 离线队列: im:offline:{userId} -> List<payload>
	IMOfflineKey = "im:offline:"
)

package config

// Built-in list presets.
const (
	PresetMinimal   = "minimal"
	PresetWorkloads = "workloads"
	PresetFull      = "full"
)

// Group ids used by the presets.
const (
	GroupWorkloads = "workloads"
	GroupDiscovery = "discovery"
	GroupConfig    = "config"
)

// ListPreset returns the lists of a named preset, or nil if the name is not
// recognized.
func ListPreset(name string) []ListConfig {
	switch name {
	case PresetMinimal:
		return []ListConfig{podList()}
	case PresetWorkloads:
		return workloadLists()
	case PresetFull:
		lists := workloadLists()
		lists = append(lists, discoveryLists()...)
		return append(lists, configLists()...)
	default:
		return nil
	}
}

// namespaceColumn is shown next to the name while all namespaces are listed.
var namespaceColumn = DynamicColumn{Name: "namespace", After: "name", When: WhenMultiNamespace}

// namespaced returns a hideable list scoped to the current namespace.
func namespaced(id, group, resource, collection, status string, columns ...string) ListConfig {
	return ListConfig{
		ID:         id,
		Group:      group,
		Endpoint:   "api/v1/" + resource + "/:namespace",
		Collection: collection,
		Columns:    columns,
		Actions:    []string{"menu"},
		Dynamic:    []DynamicColumn{namespaceColumn},
		Hideable:   true,
		Status:     status,
	}
}

func podList() ListConfig {
	return namespaced("podList", GroupWorkloads, "pod", "pods", StatusPod,
		"statusicon", "name", "images", "labels", "node", "status", "restarts", "created")
}

// workloadLists returns the eight lists that carry resource ratios.
func workloadLists() []ListConfig {
	workload := func(id, resource, collection string) ListConfig {
		return namespaced(id, GroupWorkloads, resource, collection, StatusWorkload,
			"statusicon", "name", "images", "labels", "pods", "created")
	}
	cron := namespaced("cronJobList", GroupWorkloads, "cronjob", "items", "",
		"statusicon", "name", "images", "labels", "schedule", "suspend", "active", "lastschedule", "created")

	return []ListConfig{
		cron,
		workload("daemonSetList", "daemonset", "daemonSets"),
		workload("deploymentList", "deployment", "deployments"),
		workload("jobList", "job", "jobs"),
		podList(),
		workload("replicaSetList", "replicaset", "replicaSets"),
		workload("replicationControllerList", "replicationcontroller", "replicationControllers"),
		workload("statefulSetList", "statefulset", "statefulSets"),
	}
}

func discoveryLists() []ListConfig {
	return []ListConfig{
		namespaced("serviceList", GroupDiscovery, "service", "services", "",
			"statusicon", "name", "labels", "type", "clusterip", "internalendp", "externalendp", "created"),
		namespaced("ingressList", GroupDiscovery, "ingress", "items", "",
			"name", "labels", "endpoints", "hosts", "created"),
	}
}

func configLists() []ListConfig {
	return []ListConfig{
		namespaced("configMapList", GroupConfig, "configmap", "items", "",
			"name", "labels", "created"),
		namespaced("secretList", GroupConfig, "secret", "secrets", "",
			"name", "labels", "type", "created"),
		namespaced("persistentVolumeClaimList", GroupConfig, "persistentvolumeclaim", "items", "",
			"statusicon", "name", "labels", "status", "volume", "capacity", "accessmodes", "storageclass", "created"),
	}
}

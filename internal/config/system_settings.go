package config

import (
	"os"
	"strconv"
)

const DATABASE_TYPE = "RFLOW_DATABASE_TYPE"
const DATABASE_URL = "RFLOW_DATABASE_URL"
const DATABASE_SQLLITE_FILE_NAME = "RFLOW_DATABASE_SQLLITE_FILE_NAME"
const SERVER_WEB_PORT = "RFLOW_SERVER_WEB_PORT"
const ENGINE_WORKER_COUNT = "RFLOW_ENGINE_WORKER_COUNT" //number of concurrent workflow runs per process
const ENGINE_QUEUE_SIZE = "RFLOW_ENGINE_QUEUE_SIZE"     //buffered run queue between dispatcher/api and workers
const ENGINE_HEARTBEAT_INTERVAL = "RFLOW_ENGINE_HEARTBEAT_INTERVAL"
const ENGINE_REPAIR_INTERVAL = "RFLOW_ENGINE_REPAIR_INTERVAL"
const ENGINE_REPAIR_AFTER_MINUTES = "RFLOW_ENGINE_REPAIR_AFTER_MINUTES" //runner heartbeat staleness before an execution is repaired
const EVENT_CHANNEL = "RFLOW_EVENT_CHANNEL"                             //postgres NOTIFY channel for change events
const EVENT_RECONNECT_INTERVAL = "RFLOW_EVENT_RECONNECT_INTERVAL"
const TASK_POLL_INTERVAL = "RFLOW_TASK_POLL_INTERVAL" //how often a waiting userTask step re-checks its task

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

func GetSystemSettingInteger(settingKey string) int {
	val := GetSystemSettingString(settingKey)
	if val != "" {
		intValue, _ := strconv.Atoi(val)
		return intValue
	}
	return 0
}

func GetSystemSettingString(settingKey string) string {
	val := os.Getenv(settingKey)
	if val != "" {
		return val
	}
	if settingKey == ENGINE_WORKER_COUNT {
		return "5"
	}
	if settingKey == ENGINE_QUEUE_SIZE {
		return "10"
	}
	if settingKey == ENGINE_HEARTBEAT_INTERVAL {
		return "30s"
	}
	if settingKey == ENGINE_REPAIR_INTERVAL {
		return "60s"
	}
	if settingKey == ENGINE_REPAIR_AFTER_MINUTES {
		return "5"
	}
	if settingKey == EVENT_CHANNEL {
		return "workflow_events"
	}
	if settingKey == EVENT_RECONNECT_INTERVAL {
		return "5s"
	}
	if settingKey == TASK_POLL_INTERVAL {
		return "1s"
	}
	if settingKey == SERVER_WEB_PORT {
		return "8080"
	}
	if settingKey == DATABASE_SQLLITE_FILE_NAME {
		return "./recordflow.db"
	}
	return ""
}

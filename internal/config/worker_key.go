package config

type WorkerKeyStruct struct {
	PersistAnswersQueue    string
	PersistResultsQueue    string
	PersistActivitiesQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:    "persist_answers_queue",
	PersistResultsQueue:    "persist_results_queue",
	PersistActivitiesQueue: "persist_activities_queue",
}

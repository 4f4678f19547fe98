package badger

import "fmt"

// Key layout. Zero-padded sequence numbers keep queue items in FIFO
// order under badger's lexicographic key iteration.
const (
	queuePrefix     = "queue:"
	jobPrefix       = "job:"
	ratelimitPrefix = "ratelimit:"

	pointPrefix        = "point:item:"
	pointTaskPrefix    = "point:task:"
	pointCompanyPrefix = "point:company:"
)

func makeQueueItemKey(queue string, seq uint64) []byte {
	return fmt.Appendf(nil, "%s%s:item:%020d", queuePrefix, queue, seq)
}

func makeQueueItemPrefix(queue string) []byte {
	return fmt.Appendf(nil, "%s%s:item:", queuePrefix, queue)
}

func makeQueueSeqKey(queue string) string {
	return queuePrefix + queue + ":seq"
}

func makeJobKey(jobID string) []byte {
	return []byte(jobPrefix + jobID)
}

func makeRateLimitKey(key string) []byte {
	return []byte(ratelimitPrefix + key)
}

func makePointKey(id string) []byte {
	return []byte(pointPrefix + id)
}

func makePointTaskKey(taskID, id string) []byte {
	return []byte(pointTaskPrefix + taskID + ":" + id)
}

func makePointCompanyKey(companyID, id string) []byte {
	return []byte(pointCompanyPrefix + companyID + ":" + id)
}

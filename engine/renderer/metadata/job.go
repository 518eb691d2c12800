package metadata

import "github.com/google/uuid"

/** @brief Describes a type of job */
type JobType int

const (
	/**
	 * @brief A general job that does not have any specific thread requirements.
	 */
	JOB_TYPE_GENERAL JobType = 0x02
	/**
	 * @brief A resource loading job. These read from disk and are bounded
	 * separately to avoid thrashing.
	 */
	JOB_TYPE_RESOURCE_LOAD JobType = 0x04
	/**
	 * @brief Jobs whose result creates GPU resources. Their completion is
	 * deferred to the end of the frame on the render thread.
	 */
	JOB_TYPE_GPU_RESOURCE JobType = 0x08
)

/**
 * @brief A unit of work run by the job system workers. OnStart runs on a
 * worker goroutine; OnComplete and OnFailure run on the same worker right
 * after it.
 */
type JobTask struct {
	ID   uuid.UUID
	Type JobType
	/** @brief Required. Returns the job result or an error. */
	OnStart func(input any) (any, error)
	/** @brief Optional. Receives the result of OnStart. */
	OnComplete func(result any)
	/** @brief Optional. Receives the error of OnStart. */
	OnFailure func(err error)
	/** @brief Passed to OnStart. */
	InputParams any
}

func NewJobTask(jobType JobType, input any, start func(any) (any, error)) JobTask {
	return JobTask{
		ID:          uuid.New(),
		Type:        jobType,
		OnStart:     start,
		InputParams: input,
	}
}

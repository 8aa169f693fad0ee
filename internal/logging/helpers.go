package logging

// Per-category shorthand helpers, mirroring the calling convention used
// throughout the store/embedding packages: logging.Store("...", args...)
// for info-level and logging.StoreDebug("...", args...) for debug-level.

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})  { Get(CategoryStore).Debug(format, args...) }

func Remote(format string, args ...interface{})     { Get(CategoryRemote).Info(format, args...) }
func RemoteDebug(format string, args ...interface{}) { Get(CategoryRemote).Debug(format, args...) }

func Embedding(format string, args ...interface{})      { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) { Get(CategoryEmbedding).Debug(format, args...) }

func Vector(format string, args ...interface{})      { Get(CategoryVector).Info(format, args...) }
func VectorDebug(format string, args ...interface{}) { Get(CategoryVector).Debug(format, args...) }

func Vectorize(format string, args ...interface{})      { Get(CategoryVectorize).Info(format, args...) }
func VectorizeDebug(format string, args ...interface{}) { Get(CategoryVectorize).Debug(format, args...) }

func Graph(format string, args ...interface{})      { Get(CategoryGraph).Info(format, args...) }
func GraphDebug(format string, args ...interface{}) { Get(CategoryGraph).Debug(format, args...) }

func Sync(format string, args ...interface{})      { Get(CategorySync).Info(format, args...) }
func SyncDebug(format string, args ...interface{}) { Get(CategorySync).Debug(format, args...) }

func Search(format string, args ...interface{})      { Get(CategorySearch).Info(format, args...) }
func SearchDebug(format string, args ...interface{}) { Get(CategorySearch).Debug(format, args...) }

func Recommend(format string, args ...interface{})      { Get(CategoryRecommend).Info(format, args...) }
func RecommendDebug(format string, args ...interface{}) { Get(CategoryRecommend).Debug(format, args...) }

func Scheduler(format string, args ...interface{})      { Get(CategoryScheduler).Info(format, args...) }
func SchedulerDebug(format string, args ...interface{}) { Get(CategoryScheduler).Debug(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

package utils

const ToolUserAgent = "offpack/1.0"

// tile bodies are small; keep socket buffers modest
const socketBufferSize = 256 * 1024

// highThreadWorkers is the worker count above which sockets get tuned
const highThreadWorkers = 5

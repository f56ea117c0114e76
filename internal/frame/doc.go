// Package frame implements the pixel pipe wire format: a 12-byte big-endian
// header (height, width, channels) followed by height*width*channels raw
// 8-bit samples in row-major order.
package frame

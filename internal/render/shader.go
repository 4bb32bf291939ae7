package render

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
)

const vertexSource = `#version 410 core
layout(location = 0) in vec3 aPos;
layout(location = 1) in vec3 aNormal;
uniform mat4 proj;
uniform mat4 view;
out vec3 vNormal;
void main() {
	vNormal = aNormal;
	gl_Position = proj * view * vec4(aPos, 1.0);
}
`

const fragmentSource = `#version 410 core
in vec3 vNormal;
uniform vec3 color;
uniform float alpha;
uniform vec3 lightDir;
out vec4 FragColor;
void main() {
	float diffuse = max(dot(normalize(vNormal), -lightDir), 0.0);
	FragColor = vec4(color * (0.35 + 0.65 * diffuse), alpha);
}
`

type shader struct {
	id uint32
}

func newShader(vertexSrc, fragmentSrc string) (*shader, error) {
	program, err := compileProgram(vertexSrc, fragmentSrc)
	if err != nil {
		return nil, err
	}
	return &shader{id: program}, nil
}

func (s *shader) use() { gl.UseProgram(s.id) }

func (s *shader) uniform(name string) int32 {
	return gl.GetUniformLocation(s.id, gl.Str(name+"\x00"))
}

func (s *shader) setFloat(name string, v float32) { gl.Uniform1f(s.uniform(name), v) }

func (s *shader) setVec3(name string, v [3]float32) { gl.Uniform3f(s.uniform(name), v[0], v[1], v[2]) }

func (s *shader) setMat4(name string, m *float32) { gl.UniformMatrix4fv(s.uniform(name), 1, false, m) }

func (s *shader) delete() { gl.DeleteProgram(s.id) }

func compileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vs, err := compileShader(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vs)
		return 0, err
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("failed to link program: %v", log)
	}
	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	sh := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(sh, 1, csources, nil)
	free()
	gl.CompileShader(sh)

	var status int32
	gl.GetShaderiv(sh, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(sh, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(sh, logLength, nil, gl.Str(log))
		gl.DeleteShader(sh)
		return 0, fmt.Errorf("failed to compile shader: %v", log)
	}
	return sh, nil
}
